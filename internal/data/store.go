// internal/data/store.go
package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"oraclebackend/internal/catalog"
	"oraclebackend/internal/logger"
	"oraclebackend/internal/navigator"
	"oraclebackend/internal/offering"
)

// =============================================================================
// REFERENCE DATA (offerings, rubrics, choices)
// =============================================================================

// ReplaceOfferings replaces the offering catalog snapshot in one
// transaction.
func ReplaceOfferings(ctx context.Context, entries []catalog.Entry) error {
	conn, err := GetDB()
	if err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin offerings transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM offerings`); err != nil {
		return fmt.Errorf("failed to clear offerings: %w", err)
	}
	for _, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO offerings (id, name, icon, price, alt_price) VALUES (?, ?, ?, ?, ?)
             ON CONFLICT(id) DO UPDATE SET name=excluded.name, icon=excluded.icon,
                 price=excluded.price, alt_price=excluded.alt_price`,
			e.ID, e.Name, e.Icon, e.Price, e.AltPrice)
		if err != nil {
			return fmt.Errorf("failed to insert offering %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// GetOfferings returns the offering catalog snapshot.
func GetOfferings(ctx context.Context) ([]catalog.Entry, error) {
	conn, err := GetDB()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, `SELECT id, name, icon, price, alt_price FROM offerings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query offerings: %w", err)
	}
	defer rows.Close()

	var entries []catalog.Entry
	for rows.Next() {
		var e catalog.Entry
		var icon sql.NullString
		var altPrice sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.Name, &icon, &e.Price, &altPrice); err != nil {
			return nil, fmt.Errorf("failed to scan offering: %w", err)
		}
		e.Icon = icon.String
		if altPrice.Valid {
			v := altPrice.Float64
			e.AltPrice = &v
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ReplaceRubrics replaces the rubric snapshot.
func ReplaceRubrics(ctx context.Context, rubrics []navigator.Rubric) error {
	conn, err := GetDB()
	if err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin rubrics transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rubrics`); err != nil {
		return fmt.Errorf("failed to clear rubrics: %w", err)
	}
	for _, r := range rubrics {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO rubrics (id, title, description) VALUES (?, ?, ?)`,
			r.ID, r.Title, r.Description)
		if err != nil {
			return fmt.Errorf("failed to insert rubric %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// GetRubrics returns all rubrics in id order.
func GetRubrics(ctx context.Context) ([]navigator.Rubric, error) {
	conn, err := GetDB()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, `SELECT id, title, description FROM rubrics ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rubrics: %w", err)
	}
	defer rows.Close()

	var rubrics []navigator.Rubric
	for rows.Next() {
		var r navigator.Rubric
		var desc sql.NullString
		if err := rows.Scan(&r.ID, &r.Title, &desc); err != nil {
			return nil, fmt.Errorf("failed to scan rubric: %w", err)
		}
		r.Description = desc.String
		rubrics = append(rubrics, r)
	}
	return rubrics, rows.Err()
}

// ReplaceChoices replaces the consultation-choice snapshot including each
// choice's requirement alternatives and legacy offering list.
func ReplaceChoices(ctx context.Context, choices []navigator.Choice) error {
	conn, err := GetDB()
	if err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin choices transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM consultation_choices`); err != nil {
		return fmt.Errorf("failed to clear choices: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM choice_alternatives`); err != nil {
		return fmt.Errorf("failed to clear alternatives: %w", err)
	}

	for pos, c := range choices {
		legacyJSON, err := json.Marshal(c.LegacyOfferings)
		if err != nil {
			return fmt.Errorf("failed to marshal legacy offerings for %s: %w", c.ID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO consultation_choices (id, rubric_id, title, description, position, legacy_offerings_json)
             VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.RubricID, c.Title, c.Description, pos, string(legacyJSON))
		if err != nil {
			return fmt.Errorf("failed to insert choice %s: %w", c.ID, err)
		}

		for i, alt := range c.Alternatives {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO choice_alternatives (choice_id, position, category, offering_id, quantity, name, icon)
                 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				c.ID, i, string(alt.Category), alt.OfferingID, alt.Quantity, alt.Name, alt.Icon)
			if err != nil {
				return fmt.Errorf("failed to insert alternative %d for %s: %w", i, c.ID, err)
			}
		}
	}
	return tx.Commit()
}

// GetChoices returns all consultation choices in stored order, alternatives
// attached.
func GetChoices(ctx context.Context) ([]navigator.Choice, error) {
	conn, err := GetDB()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx,
		`SELECT id, rubric_id, title, description, legacy_offerings_json
         FROM consultation_choices ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query choices: %w", err)
	}
	defer rows.Close()

	var choices []navigator.Choice
	for rows.Next() {
		var c navigator.Choice
		var desc sql.NullString
		var legacyJSON string
		if err := rows.Scan(&c.ID, &c.RubricID, &c.Title, &desc, &legacyJSON); err != nil {
			return nil, fmt.Errorf("failed to scan choice: %w", err)
		}
		c.Description = desc.String
		if legacyJSON != "" && legacyJSON != "[]" {
			if err := json.Unmarshal([]byte(legacyJSON), &c.LegacyOfferings); err != nil {
				return nil, fmt.Errorf("failed to parse legacy offerings for %s: %w", c.ID, err)
			}
		}
		choices = append(choices, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range choices {
		alts, err := getAlternatives(ctx, conn, choices[i].ID)
		if err != nil {
			return nil, err
		}
		choices[i].Alternatives = alts
	}
	return choices, nil
}

func getAlternatives(ctx context.Context, conn *sql.DB, choiceID string) ([]offering.Alternative, error) {
	rows, err := conn.QueryContext(ctx,
		`SELECT category, offering_id, quantity, name, icon
         FROM choice_alternatives WHERE choice_id = ? ORDER BY position`, choiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alternatives for %s: %w", choiceID, err)
	}
	defer rows.Close()

	var alts []offering.Alternative
	for rows.Next() {
		var alt offering.Alternative
		var cat string
		var name, icon sql.NullString
		if err := rows.Scan(&cat, &alt.OfferingID, &alt.Quantity, &name, &icon); err != nil {
			return nil, fmt.Errorf("failed to scan alternative: %w", err)
		}
		alt.Category = offering.Category(cat)
		alt.Name = name.String
		alt.Icon = icon.String
		alts = append(alts, alt)
	}
	return alts, rows.Err()
}

// =============================================================================
// WALLETS
// =============================================================================

// SetWallet replaces one user's wallet snapshot.
func SetWallet(ctx context.Context, userID string, entries []offering.WalletEntry) error {
	conn, err := GetDB()
	if err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin wallet transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM wallet_entries WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear wallet for %s: %w", userID, err)
	}
	for _, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO wallet_entries (user_id, offering_id, quantity) VALUES (?, ?, ?)
             ON CONFLICT(user_id, offering_id) DO UPDATE SET quantity=excluded.quantity`,
			userID, e.OfferingID, e.Quantity)
		if err != nil {
			return fmt.Errorf("failed to insert wallet entry %s: %w", e.OfferingID, err)
		}
	}
	return tx.Commit()
}

// GetWallet returns one user's wallet snapshot. Unknown users own nothing.
func GetWallet(ctx context.Context, userID string) ([]offering.WalletEntry, error) {
	conn, err := GetDB()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx,
		`SELECT offering_id, quantity FROM wallet_entries WHERE user_id = ? ORDER BY offering_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallet for %s: %w", userID, err)
	}
	defer rows.Close()

	var entries []offering.WalletEntry
	for rows.Next() {
		var e offering.WalletEntry
		if err := rows.Scan(&e.OfferingID, &e.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan wallet entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// SETTLEMENT LEDGER
// =============================================================================

// SettlementRecord is one ledger row: a submission, outcome or webhook
// confirmation for a redemption flow.
type SettlementRecord struct {
	ID             int64     `json:"id"`
	FlowID         string    `json:"flow_id"`
	ConsultationID string    `json:"consultation_id"`
	OfferingID     string    `json:"offering_id,omitempty"`
	Quantity       int       `json:"quantity,omitempty"`
	Status         string    `json:"status"`
	Message        string    `json:"message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AppendSettlement appends one ledger row.
func AppendSettlement(ctx context.Context, rec SettlementRecord) error {
	conn, err := GetDB()
	if err != nil {
		return err
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = conn.ExecContext(ctx,
		`INSERT INTO settlement_log (flow_id, consultation_id, offering_id, quantity, status, message, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.FlowID, rec.ConsultationID, rec.OfferingID, rec.Quantity, rec.Status, rec.Message,
		createdAt.UTC().Format(TimeFormat))
	if err != nil {
		return fmt.Errorf("failed to append settlement record: %w", err)
	}
	return nil
}

// SettlementsByFlow returns a flow's ledger rows in insertion order.
func SettlementsByFlow(ctx context.Context, flowID string) ([]SettlementRecord, error) {
	conn, err := GetDB()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx,
		`SELECT id, flow_id, consultation_id, offering_id, quantity, status, message, created_at
         FROM settlement_log WHERE flow_id = ? ORDER BY id`, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query settlement log: %w", err)
	}
	defer rows.Close()

	var records []SettlementRecord
	for rows.Next() {
		var rec SettlementRecord
		var offeringID, message sql.NullString
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.FlowID, &rec.ConsultationID, &offeringID,
			&rec.Quantity, &rec.Status, &message, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan settlement record: %w", err)
		}
		rec.OfferingID = offeringID.String
		rec.Message = message.String
		if t, err := time.Parse(TimeFormat, createdAt); err == nil {
			rec.CreatedAt = t
		} else {
			logger.LogWarn("Unparseable created_at %q on settlement record %d: %v",
				createdAt, rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// =============================================================================
// SOURCE ADAPTERS
// =============================================================================

// SQLSource adapts the store to the source interfaces consumed by the
// redemption and navigator handlers.
type SQLSource struct{}

func (SQLSource) FetchOfferings(ctx context.Context) ([]catalog.Entry, error) {
	return GetOfferings(ctx)
}

func (SQLSource) FetchWallet(ctx context.Context, userID string) ([]offering.WalletEntry, error) {
	return GetWallet(ctx, userID)
}

// FetchRequiredAlternatives resolves a consultation's requirement set from
// its stored choice, legacy lists included.
func (SQLSource) FetchRequiredAlternatives(ctx context.Context, consultationID string) ([]offering.Alternative, error) {
	conn, err := GetDB()
	if err != nil {
		return nil, err
	}

	var legacyJSON string
	err = conn.QueryRowContext(ctx,
		`SELECT legacy_offerings_json FROM consultation_choices WHERE id = ?`, consultationID).
		Scan(&legacyJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("unknown consultation %q", consultationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up consultation %s: %w", consultationID, err)
	}

	alts, err := getAlternatives(ctx, conn, consultationID)
	if err != nil {
		return nil, err
	}

	choice := navigator.Choice{ID: consultationID, Alternatives: alts}
	if legacyJSON != "" && legacyJSON != "[]" {
		if err := json.Unmarshal([]byte(legacyJSON), &choice.LegacyOfferings); err != nil {
			return nil, fmt.Errorf("failed to parse legacy offerings for %s: %w", consultationID, err)
		}
	}
	return navigator.RequirementSet(choice), nil
}

func (SQLSource) FetchRubrics(ctx context.Context) ([]navigator.Rubric, error) {
	return GetRubrics(ctx)
}

func (SQLSource) FetchConsultationChoices(ctx context.Context) ([]navigator.Choice, error) {
	return GetChoices(ctx)
}

// SQLLedger adapts the settlement log to the redemption handlers' Ledger
// interface.
type SQLLedger struct{}

func (SQLLedger) AppendSettlement(flowID, consultationID, offeringID string, quantity int, status, message string) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	return AppendSettlement(ctx, SettlementRecord{
		FlowID:         flowID,
		ConsultationID: consultationID,
		OfferingID:     offeringID,
		Quantity:       quantity,
		Status:         status,
		Message:        message,
	})
}
