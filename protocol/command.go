// Package protocol implements the ASCII line protocol spoken by the omnibase motor controller.
package protocol

import "strconv"

// Command is a velocity reference for the controller in the robot frame.
type Command struct {
	VX    float64 // m/s, forward
	VY    float64 // m/s, left
	Omega float64 // rad/s, counter-clockwise
}

// Frame converts the command to its wire form, `<vx,vy,omega>\n`.
// Fields use fixed notation with six decimals, matching C's %f.
func (cmd Command) Frame() []byte {
	frame := make([]byte, 0, 40)
	frame = append(frame, '<')
	frame = strconv.AppendFloat(frame, cmd.VX, 'f', 6, 64)
	frame = append(frame, ',')
	frame = strconv.AppendFloat(frame, cmd.VY, 'f', 6, 64)
	frame = append(frame, ',')
	frame = strconv.AppendFloat(frame, cmd.Omega, 'f', 6, 64)
	frame = append(frame, '>', '\n')
	return frame
}
