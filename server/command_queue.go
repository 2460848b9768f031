package server

import (
	"sync"

	"evcs/models"
)

// CommandQueue holds remote commands for charge points that are not connected
type CommandQueue interface {
	Enqueue(chargePointId string, command *models.QueuedCommand) error
	// Drain removes and returns every queued command of the charge point in FIFO order
	Drain(chargePointId string) ([]*models.QueuedCommand, error)
	// Requeue puts drained commands back in front of anything queued since, keeping their order
	Requeue(chargePointId string, commands []*models.QueuedCommand) error
}

type MemoryCommandQueue struct {
	mutex  sync.Mutex
	queues map[string][]*models.QueuedCommand
}

func NewMemoryCommandQueue() *MemoryCommandQueue {
	return &MemoryCommandQueue{queues: make(map[string][]*models.QueuedCommand)}
}

func (q *MemoryCommandQueue) Enqueue(chargePointId string, command *models.QueuedCommand) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.queues[chargePointId] = append(q.queues[chargePointId], command)
	return nil
}

func (q *MemoryCommandQueue) Drain(chargePointId string) ([]*models.QueuedCommand, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	commands := q.queues[chargePointId]
	delete(q.queues, chargePointId)
	return commands, nil
}

func (q *MemoryCommandQueue) Requeue(chargePointId string, commands []*models.QueuedCommand) error {
	if len(commands) == 0 {
		return nil
	}
	q.mutex.Lock()
	defer q.mutex.Unlock()
	queued := make([]*models.QueuedCommand, 0, len(commands)+len(q.queues[chargePointId]))
	queued = append(queued, commands...)
	q.queues[chargePointId] = append(queued, q.queues[chargePointId]...)
	return nil
}

// Len reports the number of commands waiting for the charge point
func (q *MemoryCommandQueue) Len(chargePointId string) int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.queues[chargePointId])
}
