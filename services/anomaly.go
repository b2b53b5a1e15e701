package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"justicetracker/models"
)

// Fixed anomaly thresholds. Budget share is measured against an even split
// between detention and community spending; overrepresentation against a
// population-proportional baseline.
const (
	expectedBudgetSharePct = 50.0
	budgetShareElevatedPct = 85.0
	budgetShareExtremePct  = 90.0

	expectedOverrepFactor = 1.0
	overrepElevatedFactor = 10.0
	overrepExtremeFactor  = 20.0
)

// AnomalyDetector evaluates aggregate domain metrics against fixed baselines.
// Each evaluation is a fresh snapshot: repeated anomalies produce repeated
// alert rows on purpose, a repeat is confirmation, not noise.
type AnomalyDetector struct {
	db     *sqlx.DB
	alerts *AlertEngine
	log    *zap.Logger
}

func NewAnomalyDetector(conn *sqlx.DB, alerts *AlertEngine, log *zap.Logger) *AnomalyDetector {
	return &AnomalyDetector{db: conn, alerts: alerts, log: log}
}

// BudgetShareSeverity bands a single category's share of the budget:
// elevated above 85%, extreme above 90%. Returns false below both bands.
func BudgetShareSeverity(actualPct float64) (string, bool) {
	switch {
	case actualPct > budgetShareExtremePct:
		return models.SeverityCritical, true
	case actualPct > budgetShareElevatedPct:
		return models.SeverityHigh, true
	default:
		return "", false
	}
}

// OverrepresentationSeverity bands the detention overrepresentation factor:
// elevated above 10x the proportional baseline, extreme above 20x.
func OverrepresentationSeverity(factor float64) (string, bool) {
	switch {
	case factor > overrepExtremeFactor:
		return models.SeverityCritical, true
	case factor > overrepElevatedFactor:
		return models.SeverityHigh, true
	default:
		return "", false
	}
}

// Evaluate runs every metric check against current data and returns the
// anomaly alerts it created.
func (d *AnomalyDetector) Evaluate(ctx context.Context) ([]models.Alert, error) {
	created := []models.Alert{}

	if alert, err := d.checkBudgetShare(ctx); err != nil {
		d.log.Warn("budget share check failed", zap.Error(err))
	} else if alert != nil {
		created = append(created, *alert)
	}

	if alert, err := d.checkOverrepresentation(ctx); err != nil {
		d.log.Warn("overrepresentation check failed", zap.Error(err))
	} else if alert != nil {
		created = append(created, *alert)
	}

	return created, nil
}

// checkBudgetShare measures the detention category's share of the most recent
// fiscal year's total allocations.
func (d *AnomalyDetector) checkBudgetShare(ctx context.Context) (*models.Alert, error) {
	var fiscalYear string
	var total, detention float64
	err := d.db.QueryRowContext(ctx,
		`SELECT fiscal_year,
		        SUM(amount),
		        SUM(amount) FILTER (WHERE category = 'detention')
		 FROM budget_allocations
		 WHERE fiscal_year = (SELECT MAX(fiscal_year) FROM budget_allocations)
		 GROUP BY fiscal_year`,
	).Scan(&fiscalYear, &total, &detention)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query budget split: %w", err)
	}
	if total <= 0 {
		return nil, nil
	}

	actualPct := detention / total * 100
	severity, anomalous := BudgetShareSeverity(actualPct)
	if !anomalous {
		return nil, nil
	}

	return d.alerts.Create(models.Alert{
		SourceID:  fiscalYear,
		AlertType: models.AlertAnomaly,
		Severity:  severity,
		Message: fmt.Sprintf("Detention receives %.1f%% of the %s youth justice budget (expected %.0f%%)",
			actualPct, fiscalYear, expectedBudgetSharePct),
		Details: map[string]any{
			"metric":      "detention_budget_share_pct",
			"fiscal_year": fiscalYear,
			"expected":    expectedBudgetSharePct,
			"actual":      actualPct,
		},
	})
}

// checkOverrepresentation compares the Indigenous share of detained youth in
// the latest period against the Indigenous share of the youth population.
func (d *AnomalyDetector) checkOverrepresentation(ctx context.Context) (*models.Alert, error) {
	var period string
	var totalDetained, indigenousDetained int
	var populationPct float64
	err := d.db.QueryRowContext(ctx,
		`SELECT period,
		        SUM(total_detained),
		        SUM(indigenous_detained),
		        AVG(indigenous_population_pct)
		 FROM youth_statistics
		 WHERE period = (SELECT MAX(period) FROM youth_statistics)
		 GROUP BY period`,
	).Scan(&period, &totalDetained, &indigenousDetained, &populationPct)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query youth statistics: %w", err)
	}
	if totalDetained <= 0 || populationPct <= 0 {
		return nil, nil
	}

	detainedPct := float64(indigenousDetained) / float64(totalDetained) * 100
	factor := detainedPct / populationPct
	severity, anomalous := OverrepresentationSeverity(factor)
	if !anomalous {
		return nil, nil
	}

	return d.alerts.Create(models.Alert{
		SourceID:  period,
		AlertType: models.AlertAnomaly,
		Severity:  severity,
		Message: fmt.Sprintf("Indigenous youth are %.1fx overrepresented in detention for %s (%.1f%% detained vs %.1f%% of population)",
			factor, period, detainedPct, populationPct),
		Details: map[string]any{
			"metric":         "indigenous_overrepresentation_factor",
			"period":         period,
			"expected":       expectedOverrepFactor,
			"actual":         factor,
			"detained_pct":   detainedPct,
			"population_pct": populationPct,
		},
	})
}
