// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package devengine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryStore struct {
	lock      sync.Mutex
	processes map[string]*Process
	tasks     map[string]*Task
	// taskOrder is the creation order, the fetch order
	taskOrder []string
}

func NewMemoryStore() Store {
	return &memoryStore{
		processes: map[string]*Process{},
		tasks:     map[string]*Task{},
	}
}

func (m *memoryStore) CreateProcess(_ context.Context, process Process, first Task) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.processes[process.Id]; ok {
		return fmt.Errorf("process instance %v already exists", process.Id)
	}
	m.processes[process.Id] = &process
	m.insertTask(first)
	return nil
}

func (m *memoryStore) GetProcess(_ context.Context, processId string) (Process, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	p, ok := m.processes[processId]
	if !ok {
		return Process{}, fmt.Errorf("process instance %v: %w", processId, ErrNotFound)
	}
	cp := *p
	cp.Variables = mergeVariables(p.Variables, nil)
	return cp, nil
}

func (m *memoryStore) GetTask(_ context.Context, taskId string) (Task, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	t, ok := m.tasks[taskId]
	if !ok {
		return Task{}, fmt.Errorf("external task %v: %w", taskId, ErrNotFound)
	}
	return *t, nil
}

func (m *memoryStore) FetchAndLock(
	_ context.Context, workerId string, topics []TopicLock, maxTasks int, now time.Time,
) ([]Task, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	var locked []Task
	for _, id := range m.taskOrder {
		if len(locked) >= maxTasks {
			break
		}
		t := m.tasks[id]
		if t.Completed || t.IsLockedAt(now) {
			continue
		}
		d, ok := topicLockDuration(topics, t.TopicName)
		if !ok {
			continue
		}
		t.WorkerId = workerId
		t.LockExpirationTime = now.Add(d)
		locked = append(locked, *t)
	}
	return locked, nil
}

func (m *memoryStore) ExtendLock(_ context.Context, taskId, workerId string, until time.Time, now time.Time) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	t, ok := m.tasks[taskId]
	if !ok {
		return fmt.Errorf("external task %v: %w", taskId, ErrNotFound)
	}
	if err := checkLock(*t, workerId, now); err != nil {
		return err
	}
	t.LockExpirationTime = until
	return nil
}

func (m *memoryStore) Complete(_ context.Context, params CompleteParams) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	t, ok := m.tasks[params.TaskId]
	if !ok {
		return fmt.Errorf("external task %v: %w", params.TaskId, ErrNotFound)
	}
	if err := checkLock(*t, params.WorkerId, params.Now); err != nil {
		return err
	}
	p, ok := m.processes[t.ProcessInstanceId]
	if !ok {
		return fmt.Errorf("process instance %v: %w", t.ProcessInstanceId, ErrNotFound)
	}

	merged := mergeVariables(p.Variables, params.Variables)
	next, end, err := params.Route(*t, merged)
	if err != nil {
		return err
	}

	t.Completed = true
	p.Variables = merged
	p.Ended = end
	if next != nil {
		m.insertTask(*next)
	}
	return nil
}

func (m *memoryStore) Close() error {
	return nil
}

func (m *memoryStore) insertTask(task Task) {
	m.tasks[task.Id] = &task
	m.taskOrder = append(m.taskOrder, task.Id)
}
