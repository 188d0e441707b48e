package cloud

import "strconv"

// Command is the body of POST /devices/{id}/commands.
type Command struct {
	Name        string `json:"command"`
	Parameter   string `json:"parameter"`
	CommandType string `json:"commandType"`
}

// Command names used by the light entity.
const (
	CommandTurnOn              = "turnOn"
	CommandTurnOff             = "turnOff"
	CommandSetBrightness       = "setBrightness"
	CommandSetColorTemperature = "setColorTemperature"

	// defaultParameter is sent for commands that take no argument.
	defaultParameter = "default"

	// commandTypeCommand marks a standard (non-custom) command.
	commandTypeCommand = "command"
)

// TurnOn switches a device on.
func TurnOn() Command {
	return Command{Name: CommandTurnOn, Parameter: defaultParameter, CommandType: commandTypeCommand}
}

// TurnOff switches a device off.
func TurnOff() Command {
	return Command{Name: CommandTurnOff, Parameter: defaultParameter, CommandType: commandTypeCommand}
}

// SetBrightness sets brightness on the cloud scale (1-100).
func SetBrightness(value int) Command {
	return Command{Name: CommandSetBrightness, Parameter: strconv.Itoa(value), CommandType: commandTypeCommand}
}

// SetColorTemperature sets colour temperature in kelvin.
func SetColorTemperature(kelvin int) Command {
	return Command{Name: CommandSetColorTemperature, Parameter: strconv.Itoa(kelvin), CommandType: commandTypeCommand}
}

// withDefaults fills in the parameter and type the API requires.
func (c Command) withDefaults() Command {
	if c.Parameter == "" {
		c.Parameter = defaultParameter
	}
	if c.CommandType == "" {
		c.CommandType = commandTypeCommand
	}
	return c
}
