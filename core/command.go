package core

import (
	"errors"
	"sync"
)

// ErrDuplicateCommand is returned when a command ID or name is registered twice
var ErrDuplicateCommand = errors.New("command already registered")

// CommandHandler handles one command. It decodes its own arguments from data
// and leaves the remaining bytes for the next command in the frame.
type CommandHandler func(data *[]byte) error

// Command is one entry of the command table
type Command struct {
	ID      uint16
	Name    string
	Format  string // argument format, e.g. "oid=%c value=%c"
	Handler CommandHandler
}

// CommandRegistry maps command IDs to handlers. IDs are fixed by the
// protocol package so host and firmware agree without a dictionary exchange.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[uint16]*Command
	nameToID map[string]uint16
	order    []uint16
}

// NewCommandRegistry creates an empty command registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[uint16]*Command),
		nameToID: make(map[string]uint16),
	}
}

// Register adds a command under a fixed ID
func (r *CommandRegistry) Register(id uint16, name string, format string, handler CommandHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[id]; exists {
		return wrapError(ErrDuplicateCommand, errors.New("id "+utoa(uint32(id))))
	}
	if _, exists := r.nameToID[name]; exists {
		return wrapError(ErrDuplicateCommand, errors.New(name))
	}

	r.commands[id] = &Command{
		ID:      id,
		Name:    name,
		Format:  format,
		Handler: handler,
	}
	r.nameToID[name] = id
	r.order = append(r.order, id)
	return nil
}

// GetCommand retrieves a command by ID
func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[id]
	return cmd, ok
}

// Lookup returns the ID registered for name
func (r *CommandRegistry) Lookup(name string) (uint16, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	return id, ok
}

// Count returns the number of registered commands
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch calls the handler registered for cmdID. Its signature matches
// protocol.CommandHandler so a registry can be handed to a transport as is.
func (r *CommandRegistry) Dispatch(cmdID uint16, data *[]byte) error {
	cmd, ok := r.GetCommand(cmdID)
	if !ok {
		return errors.New("unknown command ID: " + itoa(int(cmdID)))
	}
	if cmd.Handler == nil {
		return errors.New("command has no handler: " + cmd.Name)
	}
	return cmd.Handler(data)
}

// Dictionary lists the commands in registration order, one
// "id name format" line each
func (r *CommandRegistry) Dictionary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dict := ""
	for _, id := range r.order {
		cmd := r.commands[id]
		dict += utoa(uint32(id)) + " " + cmd.Name
		if cmd.Format != "" {
			dict += " " + cmd.Format
		}
		dict += "\n"
	}
	return dict
}
