package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"sable/internal/analysis"
	"sable/internal/tracker"
)

// SignalStore 用 sqlite 落盘信号记录与跟踪状态。
// 约定：启动时读一次，之后每次状态变更后写回；读写失败都只降级，
// 重启后的去重因此只能尽力而为。
type SignalStore struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenSignalStore 打开（或创建）数据库并执行迁移。
func OpenSignalStore(path string) (*SignalStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store 路径不能为空")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开 sqlite 失败: %w", err)
	}
	s := &SignalStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SignalStore) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS signal_records (
            id TEXT PRIMARY KEY,
            symbol TEXT NOT NULL,
            interval TEXT NOT NULL,
            signal_type TEXT NOT NULL,
            sub_type TEXT,
            direction TEXT NOT NULL,
            entry_price REAL NOT NULL,
            take_profit REAL NOT NULL,
            stop_loss REAL NOT NULL,
            entry_time INTEGER NOT NULL,
            confidence REAL DEFAULT 0,
            risk_reward REAL DEFAULT 0,
            status TEXT NOT NULL,
            exit_price REAL,
            exit_time INTEGER,
            pnl REAL,
            pnl_percent REAL,
            duration_minutes INTEGER,
            updated_at INTEGER NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_signal_records_symbol ON signal_records(symbol, status)`,
		`CREATE TABLE IF NOT EXISTS tracker_states (
            symbol TEXT NOT NULL,
            interval TEXT NOT NULL,
            payload TEXT NOT NULL,
            updated_at INTEGER NOT NULL,
            PRIMARY KEY (symbol, interval)
        )`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("迁移失败: %w", err)
		}
	}
	return nil
}

// SaveRecord 插入或更新一条信号记录。
func (s *SignalStore) SaveRecord(ctx context.Context, rec tracker.SignalRecord) error {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return fmt.Errorf("signal store 未初始化")
	}
	if rec.ID == "" {
		return fmt.Errorf("记录缺少 ID")
	}
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
        INSERT INTO signal_records
            (id, symbol, interval, signal_type, sub_type, direction, entry_price, take_profit, stop_loss,
             entry_time, confidence, risk_reward, status, exit_price, exit_time, pnl, pnl_percent,
             duration_minutes, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            status=excluded.status,
            exit_price=excluded.exit_price,
            exit_time=excluded.exit_time,
            pnl=excluded.pnl,
            pnl_percent=excluded.pnl_percent,
            duration_minutes=excluded.duration_minutes,
            updated_at=excluded.updated_at`,
		rec.ID, rec.Symbol, rec.Interval, string(rec.SignalType), rec.SubType, string(rec.Direction),
		rec.EntryPrice, rec.TakeProfit, rec.StopLoss, rec.EntryTime, rec.Confidence, rec.RiskReward,
		string(rec.Status), nullIfZeroF(rec.ExitPrice), nullIfZeroI(rec.ExitTime), rec.PnL, rec.PnLPercent,
		rec.DurationMinutes, now)
	return err
}

// LoadRecords 读出全部信号记录（按入场时间升序）。
func (s *SignalStore) LoadRecords(ctx context.Context) ([]tracker.SignalRecord, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("signal store 未初始化")
	}
	rows, err := db.QueryContext(ctx, `
        SELECT id, symbol, interval, signal_type, sub_type, direction, entry_price, take_profit, stop_loss,
               entry_time, confidence, risk_reward, status, exit_price, exit_time, pnl, pnl_percent,
               duration_minutes
        FROM signal_records ORDER BY entry_time ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []tracker.SignalRecord
	for rows.Next() {
		var rec tracker.SignalRecord
		var sigType, direction, status string
		var subType sql.NullString
		var exitPrice, pnl, pnlPct sql.NullFloat64
		var exitTime, duration sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.Symbol, &rec.Interval, &sigType, &subType, &direction,
			&rec.EntryPrice, &rec.TakeProfit, &rec.StopLoss, &rec.EntryTime, &rec.Confidence,
			&rec.RiskReward, &status, &exitPrice, &exitTime, &pnl, &pnlPct, &duration); err != nil {
			return nil, err
		}
		rec.SignalType = analysis.SignalType(sigType)
		rec.SubType = subType.String
		rec.Direction = analysis.Direction(direction)
		rec.Status = tracker.Status(status)
		rec.ExitPrice = exitPrice.Float64
		rec.ExitTime = exitTime.Int64
		rec.PnL = pnl.Float64
		rec.PnLPercent = pnlPct.Float64
		rec.DurationMinutes = duration.Int64
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveTrackerState 落盘单个 symbol×interval 的跟踪状态（整体 JSON）。
func (s *SignalStore) SaveTrackerState(ctx context.Context, st tracker.State) error {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return fmt.Errorf("signal store 未初始化")
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("序列化 tracker state 失败: %w", err)
	}
	_, err = db.ExecContext(ctx, `
        INSERT INTO tracker_states (symbol, interval, payload, updated_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(symbol, interval) DO UPDATE SET
            payload=excluded.payload,
            updated_at=excluded.updated_at`,
		st.Symbol, st.Interval, string(payload), time.Now().UnixMilli())
	return err
}

// LoadTrackerStates 读出全部跟踪状态，键为 symbol → interval。
// 单条反序列化失败跳过该条，不影响其余。
func (s *SignalStore) LoadTrackerStates(ctx context.Context) (map[string]map[string]tracker.State, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("signal store 未初始化")
	}
	rows, err := db.QueryContext(ctx, `SELECT symbol, interval, payload FROM tracker_states`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]map[string]tracker.State)
	for rows.Next() {
		var symbol, interval, payload string
		if err := rows.Scan(&symbol, &interval, &payload); err != nil {
			return nil, err
		}
		var st tracker.State
		if err := json.Unmarshal([]byte(payload), &st); err != nil {
			continue
		}
		byInterval, ok := out[symbol]
		if !ok {
			byInterval = make(map[string]tracker.State)
			out[symbol] = byInterval
		}
		byInterval[interval] = st
	}
	return out, rows.Err()
}

// Close 关闭底层连接。
func (s *SignalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func nullIfZeroF(v float64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullIfZeroI(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
