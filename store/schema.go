package store

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS runs (
    id            TEXT PRIMARY KEY,
    scenario      TEXT NOT NULL DEFAULT '',
    provider      TEXT NOT NULL DEFAULT '',
    seed          INTEGER NOT NULL DEFAULT 0,
    ticks         INTEGER NOT NULL DEFAULT 0,
    cancelled     INTEGER NOT NULL DEFAULT 0,
    truncated     INTEGER NOT NULL DEFAULT 0,
    deliveries    INTEGER NOT NULL DEFAULT 0,
    successful    INTEGER NOT NULL DEFAULT 0,
    success_rate  REAL NOT NULL DEFAULT 0,
    avg_ticks     REAL NOT NULL DEFAULT 0,
    summary_json  TEXT NOT NULL DEFAULT '{}',
    created_at    TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);

CREATE TABLE IF NOT EXISTS deliveries (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq             INTEGER NOT NULL,
    order_id        TEXT NOT NULL,
    robot_id        TEXT NOT NULL,
    table_id        TEXT NOT NULL DEFAULT '',
    success         INTEGER NOT NULL DEFAULT 0,
    ticks_elapsed   INTEGER NOT NULL DEFAULT 0,
    path_length     INTEGER NOT NULL DEFAULT 0,
    terminal_reason TEXT NOT NULL DEFAULT '',
    start_tick      INTEGER NOT NULL DEFAULT 0,
    end_tick        INTEGER NOT NULL DEFAULT 0,
    replans         INTEGER NOT NULL DEFAULT 0,
    waits           INTEGER NOT NULL DEFAULT 0,
    decisions       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_deliveries_run ON deliveries(run_id, seq);

CREATE TABLE IF NOT EXISTS trajectories (
    run_id           TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    robot_id         TEXT NOT NULL,
    points_json      TEXT NOT NULL DEFAULT '[]',
    transitions_json TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (run_id, robot_id)
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS runs (
    id            TEXT PRIMARY KEY,
    scenario      TEXT NOT NULL DEFAULT '',
    provider      TEXT NOT NULL DEFAULT '',
    seed          BIGINT NOT NULL DEFAULT 0,
    ticks         BIGINT NOT NULL DEFAULT 0,
    cancelled     BOOLEAN NOT NULL DEFAULT FALSE,
    truncated     BOOLEAN NOT NULL DEFAULT FALSE,
    deliveries    INTEGER NOT NULL DEFAULT 0,
    successful    INTEGER NOT NULL DEFAULT 0,
    success_rate  DOUBLE PRECISION NOT NULL DEFAULT 0,
    avg_ticks     DOUBLE PRECISION NOT NULL DEFAULT 0,
    summary_json  JSONB NOT NULL DEFAULT '{}',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS deliveries (
    id              BIGSERIAL PRIMARY KEY,
    run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq             INTEGER NOT NULL,
    order_id        TEXT NOT NULL,
    robot_id        TEXT NOT NULL,
    table_id        TEXT NOT NULL DEFAULT '',
    success         BOOLEAN NOT NULL DEFAULT FALSE,
    ticks_elapsed   BIGINT NOT NULL DEFAULT 0,
    path_length     INTEGER NOT NULL DEFAULT 0,
    terminal_reason TEXT NOT NULL DEFAULT '',
    start_tick      BIGINT NOT NULL DEFAULT 0,
    end_tick        BIGINT NOT NULL DEFAULT 0,
    replans         INTEGER NOT NULL DEFAULT 0,
    waits           INTEGER NOT NULL DEFAULT 0,
    decisions       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_deliveries_run ON deliveries(run_id, seq);

CREATE TABLE IF NOT EXISTS trajectories (
    run_id           TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    robot_id         TEXT NOT NULL,
    points_json      JSONB NOT NULL DEFAULT '[]',
    transitions_json JSONB NOT NULL DEFAULT '[]',
    PRIMARY KEY (run_id, robot_id)
);
`
