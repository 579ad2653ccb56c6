package sqlite

const schema = `
-- Meta table (single logical row: observation timestamp of the
-- current snapshot)
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Sections table
CREATE TABLE IF NOT EXISTS sections (
    section_id TEXT PRIMARY KEY,
    course_title TEXT NOT NULL,
    section_title TEXT NOT NULL DEFAULT ''
);

-- Periods table
CREATE TABLE IF NOT EXISTS periods (
    period_id TEXT PRIMARY KEY,
    section_id TEXT NOT NULL,
    name TEXT NOT NULL,
    FOREIGN KEY (section_id) REFERENCES sections(section_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_periods_section ON periods(section_id);

-- Categories table (compound key: category_id is only unique within
-- its period)
CREATE TABLE IF NOT EXISTS categories (
    category_id TEXT NOT NULL,
    period_id TEXT NOT NULL,
    name TEXT NOT NULL,
    weight TEXT,
    PRIMARY KEY (category_id, period_id),
    FOREIGN KEY (period_id) REFERENCES periods(period_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_categories_period ON categories(period_id);

-- Assignments table. Point values are stored as TEXT to preserve the
-- exact decimal representation the upstream source produced.
CREATE TABLE IF NOT EXISTS assignments (
    assignment_id TEXT PRIMARY KEY,
    category_id TEXT NOT NULL,
    period_id TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    earned_points TEXT,
    max_points TEXT,
    exception INTEGER NOT NULL DEFAULT 0 CHECK(exception >= 0 AND exception <= 3),
    comment TEXT NOT NULL DEFAULT '',
    due_date TEXT,
    FOREIGN KEY (category_id, period_id) REFERENCES categories(category_id, period_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_assignments_category ON assignments(category_id, period_id);
`
