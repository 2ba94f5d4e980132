// Package scripts embeds the Risor extraction scripts so the thicket binary
// works without a scripts directory on disk.
package scripts

import "embed"

// FS holds extract/{language}.risor for every supported language.
//
//go:embed extract/*.risor
var FS embed.FS
