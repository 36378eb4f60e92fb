package protocol

import (
	"regexp"
	"strconv"
)

// telegramPattern matches six space separated signed decimals. Only trailing whitespace
// (the line terminator) may follow the last field.
var telegramPattern = regexp.MustCompile(
	`^(-?\d+\.\d+) (-?\d+\.\d+) (-?\d+\.\d+) (-?\d+\.\d+) (-?\d+\.\d+) (-?\d+\.\d+)\s*$`,
)

// Telegram is one state report from the controller: the robot-frame position it tracks from
// wheel odometry and the effort (motor current) on each axis.
type Telegram struct {
	X     float64
	Y     float64
	Theta float64

	IX     float64
	IY     float64
	ITheta float64
}

// ParseTelegram decodes a single line read from the controller. A line that does not match the
// telegram grammar yields false; it is never an error since the controller also prints
// debug text and the stream may start mid-line.
func ParseTelegram(line string) (Telegram, bool) {
	groups := telegramPattern.FindStringSubmatch(line)
	if groups == nil {
		return Telegram{}, false
	}

	var fields [6]float64
	for i := range fields {
		v, err := strconv.ParseFloat(groups[i+1], 64)
		if err != nil {
			return Telegram{}, false
		}
		fields[i] = v
	}

	return Telegram{
		X:      fields[0],
		Y:      fields[1],
		Theta:  fields[2],
		IX:     fields[3],
		IY:     fields[4],
		ITheta: fields[5],
	}, true
}
