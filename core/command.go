package core

import "f4periph/protocol"

// CommandHandler decodes its own arguments from data and runs the command.
type CommandHandler func(data *[]byte) error

// Command is one registered host command
type Command struct {
	ID      uint16
	Name    string
	Handler CommandHandler
}

// Replier sends one message to the host.
type Replier func(id uint16, args func(protocol.OutputBuffer))

// CommandRegistry maps wire ids to handlers. It is filled once at startup and
// only read afterwards, so it needs no locking.
type CommandRegistry struct {
	commands map[uint16]*Command
}

// NewCommandRegistry creates an empty registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{commands: make(map[uint16]*Command)}
}

// Register binds a handler to a command id, replacing any earlier one
func (r *CommandRegistry) Register(id uint16, handler CommandHandler) {
	r.commands[id] = &Command{ID: id, Name: protocol.MessageName(id), Handler: handler}
}

// GetCommand retrieves a command by ID
func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	cmd, ok := r.commands[id]
	return cmd, ok
}

// Count returns the number of registered commands
func (r *CommandRegistry) Count() int {
	return len(r.commands)
}

// Dispatch calls the handler registered for id
func (r *CommandRegistry) Dispatch(id uint16, data *[]byte) error {
	cmd, ok := r.commands[id]
	if !ok {
		return ErrUnknownCommand
	}
	return cmd.Handler(data)
}

// Handler adapts the registry to a protocol link. Every command is answered
// with a status reply. Peripheral failures leave the rest of the block to be
// processed; unknown or malformed commands abort it since their argument
// length is unknown.
func (r *CommandRegistry) Handler(send Replier) protocol.Handler {
	return func(id uint16, args *[]byte) error {
		err := r.Dispatch(id, args)
		status := protocol.Status{Command: uint32(id), Code: uint32(StatusOf(err))}
		send(protocol.RspStatus, status.Encode)
		switch StatusOf(err) {
		case StatusUnknownCommand, StatusMalformed:
			return err
		}
		return nil
	}
}
