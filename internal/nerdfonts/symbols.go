// Package nerdfonts holds the Nerd Font glyphs used in terminal output.
package nerdfonts

const (
	Calendar = "\uF073" // 
	Timer    = "\uF2F2" // 
	Globe    = "\uF0AC" // 
)

// Status symbols
const (
	InfoCircle          = "\uF05A" // 
	CheckCircle         = "\uF058" // 
	ExclamationCircle   = "\uF06A" // 
	ExclamationTriangle = "\uF071" // 
)
