package astidrone

import (
	"fmt"
	"math"
)

// Direction is a cardinal direction relative to the drone's heading
type Direction int

// Directions
const (
	DirectionFront Direction = iota
	DirectionRight
	DirectionBack
	DirectionLeft
)

// Flip returns the character the flip command expects for d
func (d Direction) Flip() rune {
	switch d {
	case DirectionRight:
		return 'r'
	case DirectionBack:
		return 'b'
	case DirectionLeft:
		return 'l'
	}
	return 'f'
}

// offset returns the angle between the heading and d
func (d Direction) offset() int {
	return int(d) * 90
}

// ClockDirection is a direction of rotation
type ClockDirection int

// Clock directions
const (
	Clockwise ClockDirection = iota
	CounterClockwise
)

// Position is the position derived from the commands acknowledged by the drone. X points forward
// at heading 0 and Y points right.
type Position struct {
	Heading int     // In degrees, in [0, 359]
	Height  int     // In cm
	X       float64 // In cm
	Y       float64 // In cm
}

func (p Position) String() string {
	return fmt.Sprintf("X:%.2f, Y:%.2f, Z:%d, Hd:%d", p.X, p.Y, p.Height, p.Heading)
}

// Move moves the position by cm in direction d relative to the heading
func (p Position) Move(d Direction, cm int) Position {
	r := radians(p.Heading + d.offset())
	p.X += math.Cos(r) * float64(cm)
	p.Y += math.Sin(r) * float64(cm)
	return p
}

// Climb changes the height by cm, which can be negative
func (p Position) Climb(cm int) Position {
	p.Height += cm
	return p
}

// Turn rotates the heading by degrees in direction d
func (p Position) Turn(d ClockDirection, degrees int) Position {
	switch d {
	case Clockwise:
		p.Heading = (p.Heading + degrees) % 360
	case CounterClockwise:
		p.Heading -= degrees % 360
		if p.Heading < 0 {
			p.Heading += 360
		}
	}
	return p
}

// Go moves the position by an offset expressed in the drone's frame: x forward, y left, z up
func (p Position) Go(x, y, z int) Position {
	p = p.Move(DirectionFront, x)
	p = p.Move(DirectionLeft, y)
	return p.Climb(z)
}

func radians(degrees int) float64 {
	return float64(degrees) * math.Pi / 180
}
