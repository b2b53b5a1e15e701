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

// Share of the Queensland youth population that is Indigenous, used when a
// source table reports detention counts without a population column (ABS
// figure, updated with each census release).
const defaultIndigenousPopulationPct = 4.6

// ParliamentScraper collects youth detention census figures from tabled
// committee reports and upserts them into youth_statistics.
type ParliamentScraper struct {
	db      *sqlx.DB
	fetcher *Fetcher
	log     *zap.Logger
	baseURL string
}

func NewParliamentScraper(conn *sqlx.DB, fetcher *Fetcher, baseURL string, log *zap.Logger) *ParliamentScraper {
	return &ParliamentScraper{db: conn, fetcher: fetcher, log: log, baseURL: baseURL}
}

// Run implements the parliament_scraper job callable. Census tables are
// expected as period / facility / total detained / Indigenous detained rows.
func (s *ParliamentScraper) Run(ctx context.Context) (*models.JobResult, error) {
	doc, err := s.fetcher.Get(ctx, s.baseURL)
	if err != nil {
		return nil, err
	}

	result := &models.JobResult{}
	for _, table := range ExtractTables(doc) {
		if !looksLikeCensusTable(table) {
			continue
		}
		for _, row := range table.Rows {
			if len(row) < 4 {
				continue
			}
			result.RecordsFound++

			total, okTotal := ParseCount(row[2])
			indigenous, okIndigenous := ParseCount(row[3])
			if !okTotal || !okIndigenous {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("unparseable census row for %q %q", row[0], row[1]))
				continue
			}
			result.RecordsProcessed++

			inserted, err := s.upsertStatistic(ctx, Statistic{
				Period:             row[0],
				Facility:           row[1],
				TotalDetained:      total,
				IndigenousDetained: indigenous,
				PopulationPct:      defaultIndigenousPopulationPct,
				SourceURL:          s.baseURL,
			})
			if err != nil {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("save census row %q %q: %v", row[0], row[1], err))
				continue
			}
			if inserted {
				result.RecordsInserted++
			} else {
				result.RecordsUpdated++
			}
		}
	}

	s.log.Info("parliament scrape complete",
		zap.Int("found", result.RecordsFound),
		zap.Int("inserted", result.RecordsInserted),
		zap.Int("updated", result.RecordsUpdated))
	return result, nil
}

// QoNScraper collects detention figures disclosed in answers to Questions on
// Notice. Answers reference the same period/facility keys, so rows refresh
// what the census scraper found.
type QoNScraper struct {
	inner *ParliamentScraper
}

func NewQoNScraper(conn *sqlx.DB, fetcher *Fetcher, baseURL string, log *zap.Logger) *QoNScraper {
	inner := NewParliamentScraper(conn, fetcher, baseURL, log.With(zap.String("source", "qon")))
	return &QoNScraper{inner: inner}
}

func (s *QoNScraper) Run(ctx context.Context) (*models.JobResult, error) {
	return s.inner.Run(ctx)
}

// Statistic is one detention census row to persist.
type Statistic struct {
	Period             string
	Facility           string
	TotalDetained      int
	IndigenousDetained int
	PopulationPct      float64
	SourceURL          string
}

func (s *ParliamentScraper) upsertStatistic(ctx context.Context, st Statistic) (bool, error) {
	var existingID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM youth_statistics WHERE period = $1 AND facility = $2`,
		st.Period, st.Facility,
	).Scan(&existingID)

	if errors.Is(err, sql.ErrNoRows) {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO youth_statistics
			     (id, period, facility, total_detained, indigenous_detained,
			      indigenous_population_pct, source_url)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.NewString(), st.Period, st.Facility,
			st.TotalDetained, st.IndigenousDetained, st.PopulationPct, st.SourceURL)
		return true, err
	}
	if err != nil {
		return false, err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE youth_statistics
		 SET total_detained = $2, indigenous_detained = $3,
		     indigenous_population_pct = $4, source_url = $5, scraped_at = NOW()
		 WHERE id = $1`,
		existingID, st.TotalDetained, st.IndigenousDetained, st.PopulationPct, st.SourceURL)
	return false, err
}

func looksLikeCensusTable(t Table) bool {
	joined := strings.ToLower(strings.Join(t.Headers, " "))
	return strings.Contains(joined, "detained") || strings.Contains(joined, "detention")
}
