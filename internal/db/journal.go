package db

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/gantry/internal/encounter"
	"github.com/banshee-data/gantry/internal/executor"
	"github.com/banshee-data/gantry/internal/protocol"
)

// RecordEncounter journals a committed encounter.
func (db *DB) RecordEncounter(e *encounter.Encounter, committedAt time.Time) error {
	var startUnix sql.NullInt64
	if t, err := e.Start.Time(time.UTC); err == nil {
		startUnix = sql.NullInt64{Int64: t.Unix(), Valid: true}
	}

	_, err := db.Exec(
		`INSERT INTO encounters (encounter_id, start_digits, start_unix, instructions, committed_unix_ns)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID.String(), e.Start.Digits(), startUnix, e.Len(), committedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert encounter %s: %w", e.ID, err)
	}
	return nil
}

// RecordFiring journals one executor firing, successful or not.
func (db *DB) RecordFiring(f executor.Firing) error {
	var errText sql.NullString
	if f.Err != nil {
		errText = sql.NullString{String: f.Err.Error(), Valid: true}
	}

	_, err := db.Exec(
		`INSERT INTO firings (fired_unix_ns, encounter_id, seq, azimuth, elevation, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.At.UnixNano(), f.Command.EncounterID.String(), f.Command.Seq,
		f.Command.Azimuth, f.Command.Elevation, errText,
	)
	if err != nil {
		return fmt.Errorf("failed to insert firing: %w", err)
	}
	return nil
}

// RecordDecodeFault journals a batch discarded by the decoder.
func (db *DB) RecordDecodeFault(derr *protocol.DecodeError, seen time.Time) error {
	if derr == nil {
		return errors.New("nil decode error")
	}
	_, err := db.Exec(
		`INSERT INTO decode_faults (seen_unix_ns, kind, byte_offset, detail, buffer_hex)
		VALUES (?, ?, ?, ?, ?)`,
		seen.UnixNano(), derr.Kind.String(), derr.Offset, derr.Detail, hex.EncodeToString(derr.Buffer),
	)
	if err != nil {
		return fmt.Errorf("failed to insert decode fault: %w", err)
	}
	return nil
}

type FiringRecord struct {
	FiredAt     time.Time `json:"fired_at"`
	EncounterID string    `json:"encounter_id"`
	Seq         int       `json:"seq"`
	Azimuth     float64   `json:"azimuth"`
	Elevation   float64   `json:"elevation"`
	Error       string    `json:"error,omitempty"`
}

// RecentFirings returns up to limit firings, newest first.
func (db *DB) RecentFirings(limit int) ([]FiringRecord, error) {
	rows, err := db.Query(
		`SELECT fired_unix_ns, encounter_id, seq, azimuth, elevation, error
		FROM firings ORDER BY firing_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FiringRecord
	for rows.Next() {
		var (
			firedNs int64
			rec     FiringRecord
			errText sql.NullString
		)
		if err := rows.Scan(&firedNs, &rec.EncounterID, &rec.Seq, &rec.Azimuth, &rec.Elevation, &errText); err != nil {
			return nil, err
		}
		rec.FiredAt = time.Unix(0, firedNs).UTC()
		rec.Error = errText.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

type FaultRecord struct {
	SeenAt    time.Time `json:"seen_at"`
	Kind      string    `json:"kind"`
	Offset    int       `json:"offset"`
	Detail    string    `json:"detail,omitempty"`
	BufferHex string    `json:"buffer_hex"`
}

// RecentDecodeFaults returns up to limit decode faults, newest first.
func (db *DB) RecentDecodeFaults(limit int) ([]FaultRecord, error) {
	rows, err := db.Query(
		`SELECT seen_unix_ns, kind, byte_offset, detail, buffer_hex
		FROM decode_faults ORDER BY fault_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FaultRecord
	for rows.Next() {
		var (
			seenNs int64
			rec    FaultRecord
			detail sql.NullString
			buf    sql.NullString
		)
		if err := rows.Scan(&seenNs, &rec.Kind, &rec.Offset, &detail, &buf); err != nil {
			return nil, err
		}
		rec.SeenAt = time.Unix(0, seenNs).UTC()
		rec.Detail = detail.String
		rec.BufferHex = buf.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Counts reports how many rows each journal table holds.
func (db *DB) Counts() (map[string]int64, error) {
	counts := make(map[string]int64, 3)
	for _, table := range []string{"encounters", "firings", "decode_faults"} {
		var n int64
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
