// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package devengine

import (
	"context"
	"fmt"

	"github.com/xcherryio/creditbridge/config"
)

// NOTE we have to use %v because postgres doesn't take placeholders in DDL
const (
	createDatabaseQuery = "CREATE DATABASE %v"
	dropDatabaseQuery   = "DROP DATABASE IF EXISTS %v"
)

// SchemaDDL creates the lock table of the reference task source in postgres
const SchemaDDL = `
CREATE TABLE IF NOT EXISTS dev_process_instance (
	id VARCHAR(64) PRIMARY KEY,
	definition_key VARCHAR(255) NOT NULL,
	variables JSONB NOT NULL,
	ended BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE TABLE IF NOT EXISTS dev_external_task (
	id VARCHAR(64) PRIMARY KEY,
	topic_name VARCHAR(255) NOT NULL,
	process_instance_id VARCHAR(64) NOT NULL,
	variables JSONB NOT NULL,
	worker_id VARCHAR(255) NOT NULL DEFAULT '',
	lock_expiration_time TIMESTAMP WITH TIME ZONE,
	completed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE INDEX IF NOT EXISTS dev_external_task_fetch_idx
	ON dev_external_task (topic_name, completed, created_at);
`

// CreateDatabase creates the database through the admin database of the server
func CreateDatabase(ctx context.Context, cfg config.SQL, database string) error {
	cfg.DatabaseName = ""
	db, err := Connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.ExecContext(ctx, fmt.Sprintf(createDatabaseQuery, database))
	return err
}

func DropDatabase(ctx context.Context, cfg config.SQL, database string) error {
	cfg.DatabaseName = ""
	db, err := Connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.ExecContext(ctx, fmt.Sprintf(dropDatabaseQuery, database))
	return err
}

// SetupSchema creates the tables in the database of cfg, it's idempotent
func SetupSchema(ctx context.Context, cfg config.SQL) error {
	db, err := Connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.ExecContext(ctx, SchemaDDL)
	return err
}
