// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package devengine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/iancoleman/strcase"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	_ "github.com/lib/pq" // load the SQL driver for postgres
	"github.com/xcherryio/creditbridge/common/log"
	"github.com/xcherryio/creditbridge/common/log/tag"
	"github.com/xcherryio/creditbridge/config"
	"github.com/xcherryio/creditbridge/tasksource"
)

const (
	driverName = "postgres"
	dsnFmt     = "postgres://%s@%s:%s/%s"
)

const (
	insertProcessQuery = `INSERT INTO dev_process_instance
	(id, definition_key, variables, ended, created_at) VALUES
	(:id, :definition_key, :variables, :ended, :created_at)`

	insertTaskQuery = `INSERT INTO dev_external_task
	(id, topic_name, process_instance_id, variables, worker_id, lock_expiration_time, completed, created_at) VALUES
	(:id, :topic_name, :process_instance_id, :variables, :worker_id, :lock_expiration_time, :completed, :created_at)`

	selectProcessQuery = `SELECT id, definition_key, variables, ended, created_at
	FROM dev_process_instance WHERE id = $1`

	selectProcessForUpdateQuery = selectProcessQuery + ` FOR UPDATE`

	selectTaskQuery = `SELECT id, topic_name, process_instance_id, variables, worker_id, lock_expiration_time, completed, created_at
	FROM dev_external_task WHERE id = $1`

	lockTasksQuery = `UPDATE dev_external_task SET worker_id = $1, lock_expiration_time = $2
	WHERE id IN (
		SELECT id FROM dev_external_task
		WHERE topic_name = $3 AND NOT completed AND (lock_expiration_time IS NULL OR lock_expiration_time <= $4)
		ORDER BY created_at LIMIT $5
		FOR UPDATE SKIP LOCKED
	)
	RETURNING id, topic_name, process_instance_id, variables, worker_id, lock_expiration_time, completed, created_at`

	extendLockQuery = `UPDATE dev_external_task SET lock_expiration_time = $1
	WHERE id = $2 AND worker_id = $3 AND NOT completed AND lock_expiration_time > $4`

	completeTaskQuery = `UPDATE dev_external_task SET completed = TRUE
	WHERE id = $1 AND worker_id = $2 AND NOT completed AND lock_expiration_time > $3`

	updateProcessQuery = `UPDATE dev_process_instance SET variables = $1, ended = $2 WHERE id = $3`
)

// column names are mapped by strcase.ToSnake
type processRow struct {
	Id            string
	DefinitionKey string
	Variables     types.JSONText
	Ended         bool
	CreatedAt     time.Time
}

type taskRow struct {
	Id                 string
	TopicName          string
	ProcessInstanceId  string
	Variables          types.JSONText
	WorkerId           string
	LockExpirationTime sql.NullTime
	Completed          bool
	CreatedAt          time.Time
}

type sqlStore struct {
	db     *sqlx.DB
	logger log.Logger
}

func NewSQLStore(cfg config.SQL, logger log.Logger) (Store, error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, err
	}
	return &sqlStore{db: db, logger: logger}, nil
}

// Connect opens the database of cfg, the admin database postgres when it's empty
func Connect(cfg config.SQL) (*sqlx.DB, error) {
	host, port, err := net.SplitHostPort(cfg.ConnectAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid connect address, it must be in host:port format, %v, err: %v", cfg.ConnectAddr, err)
	}

	sslParams := url.Values{}
	sslParams.Set("sslmode", "disable")
	db, err := sqlx.Connect(driverName, buildDSN(cfg, host, port, sslParams))
	if err != nil {
		return nil, err
	}

	// Maps struct names in CamelCase to snake without need for db struct tags.
	db.MapperFunc(strcase.ToSnake)
	return db, nil
}

func buildDSN(cfg config.SQL, host string, port string, params url.Values) string {
	dbName := cfg.DatabaseName
	//NOTE: postgres doesn't allow to connect with empty dbName, the admin dbName is "postgres"
	if dbName == "" {
		dbName = "postgres"
	}

	userPass := url.PathEscape(cfg.User)
	if cfg.Password != "" {
		userPass += ":" + url.PathEscape(cfg.Password)
	}
	dsn := fmt.Sprintf(dsnFmt, userPass, host, port, dbName)
	if attrs := params.Encode(); attrs != "" {
		dsn += "?" + attrs
	}
	return dsn
}

func (s *sqlStore) CreateProcess(ctx context.Context, process Process, first Task) error {
	pRow, err := toProcessRow(process)
	if err != nil {
		return err
	}
	tRow, err := toTaskRow(first)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insertProcessQuery, pRow); err != nil {
			return err
		}
		_, err := tx.NamedExecContext(ctx, insertTaskQuery, tRow)
		return err
	})
}

func (s *sqlStore) GetProcess(ctx context.Context, processId string) (Process, error) {
	var row processRow
	err := s.db.GetContext(ctx, &row, selectProcessQuery, processId)
	if errors.Is(err, sql.ErrNoRows) {
		return Process{}, fmt.Errorf("process instance %v: %w", processId, ErrNotFound)
	}
	if err != nil {
		return Process{}, err
	}
	return fromProcessRow(row)
}

func (s *sqlStore) GetTask(ctx context.Context, taskId string) (Task, error) {
	return s.getTask(ctx, s.db, taskId)
}

func (s *sqlStore) getTask(ctx context.Context, q sqlx.QueryerContext, taskId string) (Task, error) {
	var row taskRow
	err := sqlx.GetContext(ctx, q, &row, selectTaskQuery, taskId)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, fmt.Errorf("external task %v: %w", taskId, ErrNotFound)
	}
	if err != nil {
		return Task{}, err
	}
	return fromTaskRow(row)
}

func (s *sqlStore) FetchAndLock(
	ctx context.Context, workerId string, topics []TopicLock, maxTasks int, now time.Time,
) ([]Task, error) {
	var locked []Task
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, topic := range topics {
			remaining := maxTasks - len(locked)
			if remaining <= 0 {
				return nil
			}
			var rows []taskRow
			err := tx.SelectContext(ctx, &rows, lockTasksQuery,
				workerId, now.Add(topic.LockDuration), topic.TopicName, now, remaining)
			if err != nil {
				return err
			}
			for _, row := range rows {
				task, err := fromTaskRow(row)
				if err != nil {
					return err
				}
				locked = append(locked, task)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return locked, nil
}

func (s *sqlStore) ExtendLock(ctx context.Context, taskId, workerId string, until time.Time, now time.Time) error {
	result, err := s.db.ExecContext(ctx, extendLockQuery, until, taskId, workerId, now)
	if err != nil {
		return err
	}
	return s.checkApplied(ctx, s.db, result, taskId, workerId, now)
}

func (s *sqlStore) Complete(ctx context.Context, params CompleteParams) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, completeTaskQuery, params.TaskId, params.WorkerId, params.Now)
		if err != nil {
			return err
		}
		if err := s.checkApplied(ctx, tx, result, params.TaskId, params.WorkerId, params.Now); err != nil {
			return err
		}

		task, err := s.getTask(ctx, tx, params.TaskId)
		if err != nil {
			return err
		}
		var pRow processRow
		if err := tx.GetContext(ctx, &pRow, selectProcessForUpdateQuery, task.ProcessInstanceId); err != nil {
			return err
		}
		process, err := fromProcessRow(pRow)
		if err != nil {
			return err
		}

		merged := mergeVariables(process.Variables, params.Variables)
		next, end, err := params.Route(task, merged)
		if err != nil {
			return err
		}
		data, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, updateProcessQuery, types.JSONText(data), end, process.Id); err != nil {
			return err
		}
		if next != nil {
			tRow, err := toTaskRow(*next)
			if err != nil {
				return err
			}
			if _, err := tx.NamedExecContext(ctx, insertTaskQuery, tRow); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

// checkApplied turns a compare-and-set that matched no row into the reason
func (s *sqlStore) checkApplied(
	ctx context.Context, q sqlx.QueryerContext, result sql.Result, taskId, workerId string, now time.Time,
) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}
	task, err := s.getTask(ctx, q, taskId)
	if err != nil {
		return err
	}
	if err := checkLock(task, workerId, now); err != nil {
		return err
	}
	return fmt.Errorf("external task %v was concurrently updated", taskId)
}

func (s *sqlStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	err = fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("failed to rollback transaction", tag.Error(rbErr))
		}
		return err
	}
	return tx.Commit()
}

func toProcessRow(p Process) (processRow, error) {
	data, err := json.Marshal(nonNilVariables(p.Variables))
	if err != nil {
		return processRow{}, err
	}
	return processRow{
		Id:            p.Id,
		DefinitionKey: p.DefinitionKey,
		Variables:     data,
		Ended:         p.Ended,
		CreatedAt:     p.CreatedAt,
	}, nil
}

func fromProcessRow(row processRow) (Process, error) {
	var vars tasksource.Variables
	if err := row.Variables.Unmarshal(&vars); err != nil {
		return Process{}, err
	}
	return Process{
		Id:            row.Id,
		DefinitionKey: row.DefinitionKey,
		Variables:     vars,
		Ended:         row.Ended,
		CreatedAt:     row.CreatedAt,
	}, nil
}

func toTaskRow(t Task) (taskRow, error) {
	data, err := json.Marshal(nonNilVariables(t.Variables))
	if err != nil {
		return taskRow{}, err
	}
	row := taskRow{
		Id:                t.Id,
		TopicName:         t.TopicName,
		ProcessInstanceId: t.ProcessInstanceId,
		Variables:         data,
		WorkerId:          t.WorkerId,
		Completed:         t.Completed,
		CreatedAt:         t.CreatedAt,
	}
	if !t.LockExpirationTime.IsZero() {
		row.LockExpirationTime = sql.NullTime{Time: t.LockExpirationTime, Valid: true}
	}
	return row, nil
}

func fromTaskRow(row taskRow) (Task, error) {
	var vars tasksource.Variables
	if err := row.Variables.Unmarshal(&vars); err != nil {
		return Task{}, err
	}
	task := Task{
		Id:                row.Id,
		TopicName:         row.TopicName,
		ProcessInstanceId: row.ProcessInstanceId,
		Variables:         vars,
		WorkerId:          row.WorkerId,
		Completed:         row.Completed,
		CreatedAt:         row.CreatedAt,
	}
	if row.LockExpirationTime.Valid {
		task.LockExpirationTime = row.LockExpirationTime.Time
	}
	return task, nil
}

func nonNilVariables(vars tasksource.Variables) tasksource.Variables {
	if vars == nil {
		return tasksource.Variables{}
	}
	return vars
}
