package scrapers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"justicetracker/models"
)

// Terms that mark a budget line as youth justice related.
var youthJusticeTerms = []string{
	"youth justice", "youth detention", "juvenile", "young offender",
}

// Terms that classify a line item as detention spending; anything else youth
// justice related counts as community.
var detentionTerms = []string{
	"detention", "custody", "secure facility", "watch house", "remand",
}

// BudgetScraper collects youth justice allocations from published budget
// papers and upserts them into budget_allocations.
type BudgetScraper struct {
	db         *sqlx.DB
	fetcher    *Fetcher
	log        *zap.Logger
	baseURL    string
	fiscalYear string
}

func NewBudgetScraper(conn *sqlx.DB, fetcher *Fetcher, baseURL, fiscalYear string, log *zap.Logger) *BudgetScraper {
	return &BudgetScraper{db: conn, fetcher: fetcher, log: log, baseURL: baseURL, fiscalYear: fiscalYear}
}

// Run implements the budget_scraper job callable.
func (s *BudgetScraper) Run(ctx context.Context) (*models.JobResult, error) {
	doc, err := s.fetcher.Get(ctx, s.baseURL)
	if err != nil {
		return nil, err
	}

	result := &models.JobResult{}
	for _, table := range ExtractTables(doc) {
		for _, row := range table.Rows {
			if len(row) < 2 {
				continue
			}
			program := row[0]
			if !containsAny(program, youthJusticeTerms) {
				continue
			}
			result.RecordsFound++

			amount, ok := ParseAmount(row[len(row)-1])
			if !ok {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("unparseable amount for %q", program))
				continue
			}
			result.RecordsProcessed++

			category := "community"
			if containsAny(program, detentionTerms) {
				category = "detention"
			}

			inserted, err := UpsertAllocation(ctx, s.db, Allocation{
				FiscalYear:     s.fiscalYear,
				Category:       category,
				Program:        program,
				Amount:         amount,
				SourceURL:      s.baseURL,
				SourceDocument: fmt.Sprintf("Budget papers %s", s.fiscalYear),
			})
			if err != nil {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("save %q: %v", program, err))
				continue
			}
			if inserted {
				result.RecordsInserted++
			} else {
				result.RecordsUpdated++
			}
		}
	}

	s.log.Info("budget scrape complete",
		zap.Int("found", result.RecordsFound),
		zap.Int("inserted", result.RecordsInserted),
		zap.Int("updated", result.RecordsUpdated))
	return result, nil
}

// TreasuryScraper collects allocations from treasury budget documents. Same
// table shape as the budget papers, different source and document labelling.
type TreasuryScraper struct {
	inner *BudgetScraper
}

func NewTreasuryScraper(conn *sqlx.DB, fetcher *Fetcher, baseURL, fiscalYear string, log *zap.Logger) *TreasuryScraper {
	inner := NewBudgetScraper(conn, fetcher, baseURL, fiscalYear, log)
	inner.log = log.With(zap.String("source", "treasury"))
	return &TreasuryScraper{inner: inner}
}

func (s *TreasuryScraper) Run(ctx context.Context) (*models.JobResult, error) {
	return s.inner.Run(ctx)
}

// Allocation is one budget line to persist.
type Allocation struct {
	FiscalYear     string
	Category       string
	Program        string
	Amount         float64
	SourceURL      string
	SourceDocument string
}

// UpsertAllocation inserts or refreshes a budget line, reporting whether the
// row was new.
func UpsertAllocation(ctx context.Context, conn *sqlx.DB, a Allocation) (bool, error) {
	var existingID string
	err := conn.QueryRowContext(ctx,
		`SELECT id FROM budget_allocations
		 WHERE fiscal_year = $1 AND category = $2 AND program = $3`,
		a.FiscalYear, a.Category, a.Program,
	).Scan(&existingID)

	if errors.Is(err, sql.ErrNoRows) {
		_, err = conn.ExecContext(ctx,
			`INSERT INTO budget_allocations
			     (id, fiscal_year, category, program, amount, source_url, source_document)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.NewString(), a.FiscalYear, a.Category, a.Program,
			a.Amount, a.SourceURL, a.SourceDocument)
		return true, err
	}
	if err != nil {
		return false, err
	}

	_, err = conn.ExecContext(ctx,
		`UPDATE budget_allocations
		 SET amount = $2, source_url = $3, source_document = $4, scraped_at = NOW()
		 WHERE id = $1`,
		existingID, a.Amount, a.SourceURL, a.SourceDocument)
	return false, err
}

func containsAny(s string, terms []string) bool {
	lower := strings.ToLower(s)
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
