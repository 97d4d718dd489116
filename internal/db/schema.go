package db

// SchemaSQL defines the video table. The table is schemaless so that nested
// audit fields and cleared (null) values merge without per-field definitions.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS video SCHEMALESS;
    DEFINE FIELD IF NOT EXISTS owner_id ON video TYPE string;
    DEFINE FIELD IF NOT EXISTS processing_status ON video TYPE string
        ASSERT $value IN ["pending", "processing", "completed", "failed", "rejected"];
    DEFINE FIELD IF NOT EXISTS processing_progress ON video TYPE int DEFAULT 0
        ASSERT $value >= 0 AND $value <= 100;
    DEFINE FIELD IF NOT EXISTS sensitivity_status ON video TYPE string DEFAULT "unknown"
        ASSERT $value IN ["unknown", "safe", "flagged"];

    DEFINE INDEX IF NOT EXISTS video_owner ON video FIELDS owner_id;
    DEFINE INDEX IF NOT EXISTS video_status ON video FIELDS processing_status;
    DEFINE INDEX IF NOT EXISTS video_created ON video FIELDS created_at;
`
