// Package store persists tracked tokens, price history, alert tiers and the
// blacklist to SQL.
//
// The default backend is an embedded SQLite file (WAL mode); setting
// RADAR_DATABASE_URL switches to Postgres. Callers see one interface either
// way. Writes are serialised internally; persistence failures are returned
// for the caller to log — the in-memory model stays authoritative for the
// process lifetime.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"dex-radar/internal/config"
	"dex-radar/pkg/types"
)

// Store wraps the SQL backend.
type Store struct {
	db     *sqlx.DB
	driver string // "sqlite3" or "postgres"
	path   string // sqlite file path, empty for postgres
	mu     sync.Mutex
	logger *slog.Logger
}

// Open connects to the configured backend and creates the schema.
func Open(cfg config.StoreConfig, logger *slog.Logger) (*Store, error) {
	s := &Store{logger: logger.With("component", "store")}

	if cfg.DatabaseURL != "" {
		db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.db = db
		s.driver = "postgres"
	} else {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create store dir: %w", err)
			}
		}
		db, err := sqlx.Connect("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1)
		s.db = db
		s.driver = "sqlite3"
		s.path = cfg.Path
	}

	if err := s.initSchema(); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == "postgres" {
		serial = "BIGSERIAL PRIMARY KEY"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tokens (
			id TEXT NOT NULL,
			contract_address TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			symbol TEXT NOT NULL DEFAULT '',
			chain_short TEXT NOT NULL DEFAULT '',
			logo_url TEXT NOT NULL DEFAULT '',
			spotted_at BIGINT NOT NULL,
			spotted_mc DOUBLE PRECISION,
			current_mc DOUBLE PRECISION,
			previous_mc DOUBLE PRECISION,
			peak_mc DOUBLE PRECISION,
			peak_multiplier DOUBLE PRECISION NOT NULL DEFAULT 1,
			volume_24h DOUBLE PRECISION,
			previous_volume_24h DOUBLE PRECISION,
			price_usd DOUBLE PRECISION,
			total_supply DOUBLE PRECISION,
			tx_metrics TEXT,
			last_metrics_update BIGINT NOT NULL DEFAULT 0,
			mc_10s_ago DOUBLE PRECISION,
			vol_10s_ago DOUBLE PRECISION,
			mc_10m_ago DOUBLE PRECISION,
			source TEXT NOT NULL DEFAULT 'degen',
			holder_rank INTEGER NOT NULL DEFAULT 0,
			holder_spotted_at BIGINT NOT NULL DEFAULT 0,
			holder_spotted_mc DOUBLE PRECISION,
			holder_peak_mc DOUBLE PRECISION,
			holder_peak_multiplier DOUBLE PRECISION NOT NULL DEFAULT 0,
			announced BOOLEAN NOT NULL DEFAULT FALSE,
			needs_data_fetch BOOLEAN NOT NULL DEFAULT FALSE,
			last_updated BIGINT NOT NULL DEFAULT 0
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS price_history (
			row_id %s,
			token_id TEXT NOT NULL,
			ts BIGINT NOT NULL,
			market_cap DOUBLE PRECISION NOT NULL,
			volume DOUBLE PRECISION NOT NULL
		)`, serial),
		`CREATE INDEX IF NOT EXISTS idx_price_history_token ON price_history (token_id, ts)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS alert_tiers (
			row_id %s,
			tier1 DOUBLE PRECISION NOT NULL,
			tier2 DOUBLE PRECISION NOT NULL,
			tier3 DOUBLE PRECISION NOT NULL,
			set_at BIGINT NOT NULL
		)`, serial),
		`CREATE TABLE IF NOT EXISTS blacklist (
			contract_address TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			blacklisted_at BIGINT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema: %w", err)
		}
	}
	return nil
}

// dbToken maps the tokens table. Optional numerics are pointers so NULL and
// zero stay distinct.
type dbToken struct {
	ID                   string   `db:"id"`
	ContractAddress      string   `db:"contract_address"`
	Name                 string   `db:"name"`
	Symbol               string   `db:"symbol"`
	ChainShort           string   `db:"chain_short"`
	LogoURL              string   `db:"logo_url"`
	SpottedAt            int64    `db:"spotted_at"`
	SpottedMC            *float64 `db:"spotted_mc"`
	CurrentMC            *float64 `db:"current_mc"`
	PreviousMC           *float64 `db:"previous_mc"`
	PeakMC               *float64 `db:"peak_mc"`
	PeakMultiplier       float64  `db:"peak_multiplier"`
	Volume24h            *float64 `db:"volume_24h"`
	PreviousVolume24h    *float64 `db:"previous_volume_24h"`
	PriceUSD             *float64 `db:"price_usd"`
	TotalSupply          *float64 `db:"total_supply"`
	TxMetrics            *string  `db:"tx_metrics"`
	LastMetricsUpdate    int64    `db:"last_metrics_update"`
	MC10sAgo             *float64 `db:"mc_10s_ago"`
	Vol10sAgo            *float64 `db:"vol_10s_ago"`
	MC10mAgo             *float64 `db:"mc_10m_ago"`
	Source               string   `db:"source"`
	HolderRank           int      `db:"holder_rank"`
	HolderSpottedAt      int64    `db:"holder_spotted_at"`
	HolderSpottedMC      *float64 `db:"holder_spotted_mc"`
	HolderPeakMC         *float64 `db:"holder_peak_mc"`
	HolderPeakMultiplier float64  `db:"holder_peak_multiplier"`
	Announced            bool     `db:"announced"`
	NeedsDataFetch       bool     `db:"needs_data_fetch"`
	LastUpdated          int64    `db:"last_updated"`
}

func toDB(t *types.Token) (*dbToken, error) {
	row := &dbToken{
		ID:                   t.ID,
		ContractAddress:      t.ContractAddress,
		Name:                 t.Name,
		Symbol:               t.Symbol,
		ChainShort:           t.ChainShort,
		LogoURL:              t.LogoURL,
		SpottedAt:            t.SpottedAt.UnixMilli(),
		SpottedMC:            t.SpottedMC,
		CurrentMC:            t.CurrentMC,
		PreviousMC:           t.PreviousMC,
		PeakMC:               t.PeakMC,
		PeakMultiplier:       t.PeakMultiplier,
		Volume24h:            t.Volume24h,
		PreviousVolume24h:    t.PreviousVolume24h,
		PriceUSD:             t.PriceUSD,
		TotalSupply:          t.TotalSupply,
		MC10sAgo:             t.MC10sAgo,
		Vol10sAgo:            t.Vol10sAgo,
		MC10mAgo:             t.MC10mAgo,
		Source:               string(t.Source),
		HolderRank:           t.HolderRank,
		HolderSpottedMC:      t.HolderSpottedMC,
		HolderPeakMC:         t.HolderPeakMC,
		HolderPeakMultiplier: t.HolderPeakMultiplier,
		Announced:            t.Announced,
		NeedsDataFetch:       t.NeedsDataFetch,
	}
	if !t.LastMetricsUpdate.IsZero() {
		row.LastMetricsUpdate = t.LastMetricsUpdate.UnixMilli()
	}
	if !t.HolderSpottedAt.IsZero() {
		row.HolderSpottedAt = t.HolderSpottedAt.UnixMilli()
	}
	if !t.LastUpdated.IsZero() {
		row.LastUpdated = t.LastUpdated.UnixMilli()
	}
	if t.TxMetrics != nil {
		raw, err := json.Marshal(t.TxMetrics)
		if err != nil {
			return nil, fmt.Errorf("marshal tx metrics: %w", err)
		}
		str := string(raw)
		row.TxMetrics = &str
	}
	return row, nil
}

func fromDB(row *dbToken) *types.Token {
	t := &types.Token{
		ID:                   row.ID,
		ContractAddress:      row.ContractAddress,
		Name:                 row.Name,
		Symbol:               row.Symbol,
		ChainShort:           row.ChainShort,
		LogoURL:              row.LogoURL,
		SpottedAt:            time.UnixMilli(row.SpottedAt),
		SpottedMC:            row.SpottedMC,
		CurrentMC:            row.CurrentMC,
		PreviousMC:           row.PreviousMC,
		PeakMC:               row.PeakMC,
		PeakMultiplier:       row.PeakMultiplier,
		Volume24h:            row.Volume24h,
		PreviousVolume24h:    row.PreviousVolume24h,
		PriceUSD:             row.PriceUSD,
		TotalSupply:          row.TotalSupply,
		MC10sAgo:             row.MC10sAgo,
		Vol10sAgo:            row.Vol10sAgo,
		MC10mAgo:             row.MC10mAgo,
		Source:               types.Source(row.Source),
		HolderRank:           row.HolderRank,
		HolderSpottedMC:      row.HolderSpottedMC,
		HolderPeakMC:         row.HolderPeakMC,
		HolderPeakMultiplier: row.HolderPeakMultiplier,
		Announced:            row.Announced,
		NeedsDataFetch:       row.NeedsDataFetch,
	}
	if row.LastMetricsUpdate > 0 {
		t.LastMetricsUpdate = time.UnixMilli(row.LastMetricsUpdate)
	}
	if row.HolderSpottedAt > 0 {
		t.HolderSpottedAt = time.UnixMilli(row.HolderSpottedAt)
	}
	if row.LastUpdated > 0 {
		t.LastUpdated = time.UnixMilli(row.LastUpdated)
	}
	if row.TxMetrics != nil && *row.TxMetrics != "" {
		var w types.TxWindow
		if err := json.Unmarshal([]byte(*row.TxMetrics), &w); err == nil {
			t.TxMetrics = &w
		}
	}
	return t
}

// UpsertToken writes the full token row, replacing by contract address.
// spotted_at never regresses: the stored value is the minimum of the
// existing and incoming timestamps.
func (s *Store) UpsertToken(t *types.Token) error {
	row, err := toDB(t)
	if err != nil {
		return err
	}

	least := "MIN"
	if s.driver == "postgres" {
		least = "LEAST"
	}

	query := fmt.Sprintf(`INSERT INTO tokens (
		id, contract_address, name, symbol, chain_short, logo_url,
		spotted_at, spotted_mc, current_mc, previous_mc, peak_mc, peak_multiplier,
		volume_24h, previous_volume_24h, price_usd, total_supply,
		tx_metrics, last_metrics_update, mc_10s_ago, vol_10s_ago, mc_10m_ago,
		source, holder_rank, holder_spotted_at, holder_spotted_mc,
		holder_peak_mc, holder_peak_multiplier, announced, needs_data_fetch, last_updated
	) VALUES (
		:id, :contract_address, :name, :symbol, :chain_short, :logo_url,
		:spotted_at, :spotted_mc, :current_mc, :previous_mc, :peak_mc, :peak_multiplier,
		:volume_24h, :previous_volume_24h, :price_usd, :total_supply,
		:tx_metrics, :last_metrics_update, :mc_10s_ago, :vol_10s_ago, :mc_10m_ago,
		:source, :holder_rank, :holder_spotted_at, :holder_spotted_mc,
		:holder_peak_mc, :holder_peak_multiplier, :announced, :needs_data_fetch, :last_updated
	) ON CONFLICT (contract_address) DO UPDATE SET
		id = excluded.id,
		name = excluded.name,
		symbol = excluded.symbol,
		chain_short = excluded.chain_short,
		logo_url = excluded.logo_url,
		spotted_at = %s(tokens.spotted_at, excluded.spotted_at),
		spotted_mc = excluded.spotted_mc,
		current_mc = excluded.current_mc,
		previous_mc = excluded.previous_mc,
		peak_mc = excluded.peak_mc,
		peak_multiplier = excluded.peak_multiplier,
		volume_24h = excluded.volume_24h,
		previous_volume_24h = excluded.previous_volume_24h,
		price_usd = excluded.price_usd,
		total_supply = excluded.total_supply,
		tx_metrics = excluded.tx_metrics,
		last_metrics_update = excluded.last_metrics_update,
		mc_10s_ago = excluded.mc_10s_ago,
		vol_10s_ago = excluded.vol_10s_ago,
		mc_10m_ago = excluded.mc_10m_ago,
		source = excluded.source,
		holder_rank = excluded.holder_rank,
		holder_spotted_at = excluded.holder_spotted_at,
		holder_spotted_mc = excluded.holder_spotted_mc,
		holder_peak_mc = excluded.holder_peak_mc,
		holder_peak_multiplier = excluded.holder_peak_multiplier,
		announced = excluded.announced,
		needs_data_fetch = excluded.needs_data_fetch,
		last_updated = excluded.last_updated`, least)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.NamedExec(query, row); err != nil {
		return fmt.Errorf("upsert token %s: %w", t.ContractAddress, err)
	}
	return nil
}

// TokensSince loads rows spotted after the cutoff, plus every holder token
// regardless of age, newest multiplier first.
func (s *Store) TokensSince(cutoff time.Time) ([]*types.Token, error) {
	query := s.db.Rebind(`SELECT * FROM tokens
		WHERE spotted_at > ? OR source = 'holder'
		ORDER BY peak_multiplier DESC`)

	var rows []dbToken
	if err := s.db.Select(&rows, query, cutoff.UnixMilli()); err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}

	out := make([]*types.Token, len(rows))
	for i := range rows {
		out[i] = fromDB(&rows[i])
	}
	return out, nil
}

// AppendPriceHistory records one (mc, vol) observation for a token.
func (s *Store) AppendPriceHistory(tokenID string, mc, vol float64) error {
	query := s.db.Rebind(`INSERT INTO price_history (token_id, ts, market_cap, volume) VALUES (?, ?, ?, ?)`)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(query, tokenID, time.Now().UnixMilli(), mc, vol); err != nil {
		return fmt.Errorf("append price history: %w", err)
	}
	return nil
}

// PriceHistoryCount reports the number of stored history rows for a token.
func (s *Store) PriceHistoryCount(tokenID string) (int, error) {
	query := s.db.Rebind(`SELECT COUNT(*) FROM price_history WHERE token_id = ?`)
	var n int
	if err := s.db.Get(&n, query, tokenID); err != nil {
		return 0, fmt.Errorf("count price history: %w", err)
	}
	return n, nil
}

// SaveTiers appends a new tier configuration row.
func (s *Store) SaveTiers(t types.AlertTiers) error {
	query := s.db.Rebind(`INSERT INTO alert_tiers (tier1, tier2, tier3, set_at) VALUES (?, ?, ?, ?)`)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(query, t.Tier1, t.Tier2, t.Tier3, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("save tiers: %w", err)
	}
	return nil
}

// LoadTiers returns the most recent tier configuration, or the defaults when
// none was ever saved.
func (s *Store) LoadTiers() (types.AlertTiers, error) {
	var t types.AlertTiers
	err := s.db.Get(&t, `SELECT tier1, tier2, tier3 FROM alert_tiers ORDER BY set_at DESC, row_id DESC LIMIT 1`)
	if err == sql.ErrNoRows {
		return types.DefaultTiers(), nil
	}
	if err != nil {
		return types.DefaultTiers(), fmt.Errorf("load tiers: %w", err)
	}
	return t, nil
}

// BlacklistAdd bans an address. Idempotent; also removes the address from the
// tokens table.
func (s *Store) BlacklistAdd(addr, name string) error {
	insert := s.db.Rebind(`INSERT INTO blacklist (contract_address, name, blacklisted_at) VALUES (?, ?, ?)
		ON CONFLICT (contract_address) DO NOTHING`)
	remove := s.db.Rebind(`DELETE FROM tokens WHERE contract_address = ?`)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(insert, addr, name, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("blacklist add: %w", err)
	}
	if _, err := s.db.Exec(remove, addr); err != nil {
		return fmt.Errorf("blacklist remove token: %w", err)
	}
	return nil
}

// BlacklistContains reports whether an address is banned.
func (s *Store) BlacklistContains(addr string) (bool, error) {
	query := s.db.Rebind(`SELECT COUNT(*) FROM blacklist WHERE contract_address = ?`)
	var n int
	if err := s.db.Get(&n, query, addr); err != nil {
		return false, fmt.Errorf("blacklist contains: %w", err)
	}
	return n > 0, nil
}

// BlacklistList returns all banned addresses, newest first.
func (s *Store) BlacklistList() ([]types.BlacklistEntry, error) {
	var rows []struct {
		ContractAddress string `db:"contract_address"`
		Name            string `db:"name"`
		BlacklistedAt   int64  `db:"blacklisted_at"`
	}
	if err := s.db.Select(&rows, `SELECT contract_address, name, blacklisted_at FROM blacklist ORDER BY blacklisted_at DESC`); err != nil {
		return nil, fmt.Errorf("blacklist list: %w", err)
	}

	out := make([]types.BlacklistEntry, len(rows))
	for i, r := range rows {
		out[i] = types.BlacklistEntry{
			ContractAddress: r.ContractAddress,
			Name:            r.Name,
			BlacklistedAt:   time.UnixMilli(r.BlacklistedAt),
		}
	}
	return out, nil
}

// BlacklistRemove lifts a ban.
func (s *Store) BlacklistRemove(addr string) error {
	query := s.db.Rebind(`DELETE FROM blacklist WHERE contract_address = ?`)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(query, addr); err != nil {
		return fmt.Errorf("blacklist remove: %w", err)
	}
	return nil
}

// PurgeDegen wipes degen tokens, all price history and the tier history while
// preserving the blacklist bit for bit.
//
// On SQLite the database file and its WAL/SHM side files are removed so the
// next open starts from a clean slate; the schema is recreated and the
// blacklist re-inserted. On Postgres the equivalent deletes run in one
// transaction. Holder tokens live on in memory and are re-persisted by the
// caller.
func (s *Store) PurgeDegen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.driver == "postgres" {
		tx, err := s.db.Beginx()
		if err != nil {
			return fmt.Errorf("purge begin: %w", err)
		}
		for _, stmt := range []string{
			`DELETE FROM tokens WHERE source = 'degen'`,
			`DELETE FROM price_history`,
			`DELETE FROM alert_tiers`,
		} {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("purge: %w", err)
			}
		}
		return tx.Commit()
	}

	// SQLite: carry the blacklist across a full file reset.
	blacklist, err := s.BlacklistList()
	if err != nil {
		return err
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("purge close: %w", err)
	}
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(s.path + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("purge remove %s: %w", s.path+suffix, err)
		}
	}

	db, err := sqlx.Connect("sqlite3", s.path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("purge reopen: %w", err)
	}
	db.SetMaxOpenConns(1)
	s.db = db
	if err := s.initSchema(); err != nil {
		return fmt.Errorf("purge schema: %w", err)
	}

	insert := s.db.Rebind(`INSERT INTO blacklist (contract_address, name, blacklisted_at) VALUES (?, ?, ?)`)
	for _, e := range blacklist {
		if _, err := s.db.Exec(insert, e.ContractAddress, e.Name, e.BlacklistedAt.UnixMilli()); err != nil {
			return fmt.Errorf("purge restore blacklist: %w", err)
		}
	}
	return nil
}
