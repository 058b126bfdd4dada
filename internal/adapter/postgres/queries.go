package postgres

// queryListSchemas excludes the schemas passed as $1..$3.
const queryListSchemas = `
	SELECT s.schema_name
	FROM information_schema.schemata s
	WHERE s.schema_name NOT IN ($1, $2, $3)
	  AND s.schema_name NOT LIKE 'pg_temp_%'
	  AND s.schema_name NOT LIKE 'pg_toast_temp_%'
	ORDER BY s.schema_name`

// querySchemaColumns lists every column of every table and view in schema $1.
const querySchemaColumns = `
	SELECT c.table_name, c.column_name, c.data_type
	FROM information_schema.columns c
	JOIN information_schema.tables t
	  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
	WHERE c.table_schema = $1
	ORDER BY c.table_name, c.ordinal_position`

// queryTableComments returns table comments in schema $1.
const queryTableComments = `
	SELECT c.relname, obj_description(c.oid, 'pg_class')
	FROM pg_class c
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $1
	  AND c.relkind IN ('r', 'v', 'm', 'p')
	  AND obj_description(c.oid, 'pg_class') IS NOT NULL
	ORDER BY c.relname`
