package history

// Schema for the simulation log.
// Compatible with both SQLite and PostgreSQL. Position is allocated by the
// store under its lock, so insertion order is explicit rather than relying
// on driver-specific auto-increment.
const schemaHistory = `
CREATE TABLE IF NOT EXISTS history (
    position BIGINT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    income REAL NOT NULL,
    age INTEGER NOT NULL,
    requested_amount REAL NOT NULL,
    collateral_value REAL NOT NULL,
    collateral_liquidity TEXT NOT NULL,
    probability REAL,
    approved TEXT NOT NULL,
    message TEXT
);

CREATE INDEX IF NOT EXISTS idx_history_position ON history(position);
CREATE INDEX IF NOT EXISTS idx_history_liquidity ON history(collateral_liquidity);
`
