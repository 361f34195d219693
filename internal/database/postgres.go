package database

import (
	"database/sql"
	"fmt"

	"imovel-portal/internal/models"

	_ "github.com/lib/pq"
)

// DB is a reduced PostgreSQL backend for the public listing read path.
// The sync pipeline, source configs and run logs require the GORM store.
type DB struct {
	conn *sql.DB
}

func NewDB(host, port, user, password, dbname string) (*DB, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	return &DB{conn: conn}, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// InitSchema creates the properties table if it doesn't exist
func (db *DB) InitSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS properties (
		id SERIAL PRIMARY KEY,
		categoria VARCHAR(20),
		tipo_transacao VARCHAR(20),
		subtipo VARCHAR(50),
		cidade VARCHAR(100),
		bairro VARCHAR(100),
		endereco TEXT,
		valor DECIMAL(14, 2),
		area DECIMAL(10, 2),
		descricao TEXT,
		contato VARCHAR(30),
		sponsor_id INTEGER,
		images TEXT,
		latitude DECIMAL(10, 7),
		longitude DECIMAL(10, 7),
		active BOOLEAN NOT NULL DEFAULT TRUE,

		-- Provenance
		source_api VARCHAR(50),
		external_id VARCHAR(255),
		source_display_name VARCHAR(100),
		last_sync_at TIMESTAMP,
		sync_status VARCHAR(20),

		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	-- Upsert key for synced listings; NULLs (internal listings) never collide
	CREATE UNIQUE INDEX IF NOT EXISTS idx_external_source ON properties(external_id, source_api);
	CREATE INDEX IF NOT EXISTS idx_properties_created_at ON properties(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_properties_cidade ON properties(cidade);
	CREATE INDEX IF NOT EXISTS idx_properties_valor ON properties(valor);
	`
	_, err := db.conn.Exec(query)
	return err
}

// GetActiveProperties retrieves active listings, newest first
func (db *DB) GetActiveProperties(limit int) ([]models.Imovel, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, COALESCE(categoria, ''), COALESCE(tipo_transacao, ''), COALESCE(subtipo, ''),
			   COALESCE(cidade, ''), COALESCE(bairro, ''), COALESCE(endereco, ''),
			   valor, area, COALESCE(descricao, ''), COALESCE(contato, ''), active,
			   source_api, external_id, COALESCE(source_display_name, ''), last_sync_at,
			   COALESCE(sync_status, ''), created_at, updated_at
		FROM properties
		WHERE active = TRUE
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var properties []models.Imovel
	for rows.Next() {
		var p models.Imovel
		err := rows.Scan(
			&p.ID, &p.Categoria, &p.TipoTransacao, &p.Subtipo, &p.Cidade, &p.Bairro, &p.Endereco,
			&p.Valor, &p.Area, &p.Descricao, &p.Contato, &p.Active,
			&p.SourceAPI, &p.ExternalID, &p.SourceDisplayName, &p.LastSyncAt, &p.SyncStatus,
			&p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		properties = append(properties, p)
	}

	return properties, rows.Err()
}

// GetPropertyByID retrieves a listing by primary key
func (db *DB) GetPropertyByID(id uint) (*models.Imovel, error) {
	query := `
		SELECT id, COALESCE(categoria, ''), COALESCE(tipo_transacao, ''), COALESCE(subtipo, ''),
			   COALESCE(cidade, ''), COALESCE(bairro, ''), COALESCE(endereco, ''),
			   valor, area, COALESCE(descricao, ''), COALESCE(contato, ''), active,
			   source_api, external_id, COALESCE(source_display_name, ''), last_sync_at,
			   COALESCE(sync_status, ''), created_at, updated_at
		FROM properties
		WHERE id = $1
	`

	var p models.Imovel
	err := db.conn.QueryRow(query, id).Scan(
		&p.ID, &p.Categoria, &p.TipoTransacao, &p.Subtipo, &p.Cidade, &p.Bairro, &p.Endereco,
		&p.Valor, &p.Area, &p.Descricao, &p.Contato, &p.Active,
		&p.SourceAPI, &p.ExternalID, &p.SourceDisplayName, &p.LastSyncAt, &p.SyncStatus,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}
