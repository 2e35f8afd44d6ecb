package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smartdevs17/rsk-contract-deployer/internal/models"
	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

const deploymentColumns = `id, network, contract_name, contract_address, deployer_address,
	deployment_date, block_number, gas_used, transaction_hash, failed_steps, created_at`

// deploymentQueries holds the SQL shared by both drivers. Queries are written
// with ? placeholders and rebound for drivers that number them.
type deploymentQueries struct {
	numbered bool
}

func (q deploymentQueries) rebind(query string) string {
	if !q.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (q deploymentQueries) insert(ctx context.Context, db *sql.DB, entry *models.HistoryEntry) (int64, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var block interface{}
	if entry.BlockNumber != nil {
		block = int64(*entry.BlockNumber)
	}

	query := q.rebind(`
		INSERT INTO deployments
		(network, contract_name, contract_address, deployer_address, deployment_date,
		 block_number, gas_used, transaction_hash, failed_steps, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	args := []interface{}{
		entry.Network, entry.ContractName, entry.ContractAddress, entry.DeployerAddress,
		entry.DeploymentDate, block, entry.GasUsed, entry.TransactionHash, entry.FailedSteps,
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	}

	if q.numbered {
		var id int64
		err := db.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&id)
		return id, err
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q deploymentQueries) get(ctx context.Context, db *sql.DB, txHash string) (*models.HistoryEntry, error) {
	row := db.QueryRowContext(ctx, q.rebind(
		`SELECT `+deploymentColumns+` FROM deployments WHERE LOWER(transaction_hash) = LOWER(?)`), txHash)

	entry, err := scanDeployment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Deployment not found", txHash)
	}
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to get deployment", err)
	}
	return entry, nil
}

func (q deploymentQueries) where(filter models.DeploymentFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.Network != nil {
		conditions = append(conditions, "network = ?")
		args = append(args, *filter.Network)
	}
	if filter.ContractAddress != nil {
		conditions = append(conditions, "LOWER(contract_address) = LOWER(?)")
		args = append(args, *filter.ContractAddress)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func (q deploymentQueries) list(ctx context.Context, db *sql.DB, filter models.DeploymentFilter) ([]*models.HistoryEntry, error) {
	where, args := q.where(filter)
	query := `SELECT ` + deploymentColumns + ` FROM deployments` + where + ` ORDER BY id DESC`

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := db.QueryContext(ctx, q.rebind(query), args...)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to query deployments", err)
	}
	defer rows.Close()

	var entries []*models.HistoryEntry
	for rows.Next() {
		entry, err := scanDeployment(rows)
		if err != nil {
			return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to scan deployment", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to iterate deployments", err)
	}
	return entries, nil
}

func (q deploymentQueries) count(ctx context.Context, db *sql.DB, filter models.DeploymentFilter) (int64, error) {
	where, args := q.where(filter)
	var count int64
	if err := db.QueryRowContext(ctx, q.rebind(`SELECT COUNT(*) FROM deployments`+where), args...).Scan(&count); err != nil {
		return 0, utils.WrapError(utils.ErrCodeDatabase, "Failed to count deployments", err)
	}
	return count, nil
}

func (q deploymentQueries) latest(ctx context.Context, db *sql.DB, network string) (*models.HistoryEntry, error) {
	entries, err := q.list(ctx, db, models.DeploymentFilter{Network: &network, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "No deployments for network", network)
	}
	return entries[0], nil
}

func (q deploymentQueries) stats(ctx context.Context, db *sql.DB) (*StorageStats, error) {
	stats := &StorageStats{DeploymentsByChain: make(map[string]int64)}

	rows, err := db.QueryContext(ctx, `SELECT network, COUNT(*) FROM deployments GROUP BY network`)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to get deployment stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var network string
		var count int64
		if err := rows.Scan(&network, &count); err != nil {
			return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to scan deployment stats", err)
		}
		stats.DeploymentsByChain[network] = count
		stats.TotalDeployments += count
	}
	if err := rows.Err(); err != nil {
		return nil, utils.WrapError(utils.ErrCodeDatabase, "Failed to iterate deployment stats", err)
	}

	var latest dbTime
	if err := db.QueryRowContext(ctx, `SELECT created_at FROM deployments ORDER BY id DESC LIMIT 1`).Scan(&latest); err == nil {
		t := latest.Time
		stats.LatestDeployment = &t
	}

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDeployment(row rowScanner) (*models.HistoryEntry, error) {
	var entry models.HistoryEntry
	var block sql.NullInt64
	var created dbTime

	err := row.Scan(&entry.ID, &entry.Network, &entry.ContractName, &entry.ContractAddress,
		&entry.DeployerAddress, &entry.DeploymentDate, &block, &entry.GasUsed,
		&entry.TransactionHash, &entry.FailedSteps, &created)
	if err != nil {
		return nil, err
	}

	if block.Valid {
		n := uint64(block.Int64)
		entry.BlockNumber = &n
	}
	entry.CreatedAt = created.Time
	return &entry, nil
}

// dbTime scans timestamps stored either natively or as RFC 3339 text
type dbTime struct {
	Time time.Time
}

func (t *dbTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (t *dbTime) parse(s string) error {
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	t.Time = parsed.UTC()
	return nil
}
