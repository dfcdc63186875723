package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/edgeo/drivers/cotp/cotp"
)

// OutputFormat represents output format types
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
	FormatRaw   OutputFormat = "raw"
)

// Formatter handles output formatting
type Formatter struct {
	format OutputFormat
	writer io.Writer
}

// NewFormatter creates a new formatter
func NewFormatter(format string) *Formatter {
	return &Formatter{
		format: OutputFormat(strings.ToLower(format)),
		writer: os.Stdout,
	}
}

// newOutput returns a formatter for the configured --output format
func newOutput() *Formatter {
	return NewFormatter(viper.GetString("output"))
}

// Format returns the output format
func (f *Formatter) Format() OutputFormat {
	return f.format
}

// SetWriter sets the output writer
func (f *Formatter) SetWriter(w io.Writer) {
	f.writer = w
}

// Printf formats and prints output
func (f *Formatter) Printf(format string, args ...interface{}) {
	fmt.Fprintf(f.writer, format, args...)
}

// Println prints a line
func (f *Formatter) Println(args ...interface{}) {
	fmt.Fprintln(f.writer, args...)
}

// PrintStructured prints v as JSON or YAML. It returns false for the
// other formats so callers can fall back to their own layout.
func (f *Formatter) PrintStructured(v interface{}) (bool, error) {
	switch f.format {
	case FormatJSON:
		encoder := json.NewEncoder(f.writer)
		encoder.SetIndent("", "  ")
		return true, encoder.Encode(v)
	case FormatYAML:
		encoder := yaml.NewEncoder(f.writer)
		encoder.SetIndent(2)
		if err := encoder.Encode(v); err != nil {
			return true, err
		}
		return true, encoder.Close()
	default:
		return false, nil
	}
}

// PrintLine prints v as a single JSON line or as one YAML document, for
// streaming output.
func (f *Formatter) PrintLine(v interface{}) (bool, error) {
	switch f.format {
	case FormatJSON:
		return true, json.NewEncoder(f.writer).Encode(v)
	case FormatYAML:
		fmt.Fprintln(f.writer, "---")
		return true, yaml.NewEncoder(f.writer).Encode(v)
	default:
		return false, nil
	}
}

// PrintTable prints data in table format
func (f *Formatter) PrintTable(headers []string, rows [][]string) {
	// Calculate column widths
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, h := range headers {
		fmt.Fprintf(f.writer, "%-*s ", widths[i], h)
	}
	fmt.Fprintln(f.writer)

	for i := range headers {
		fmt.Fprint(f.writer, strings.Repeat("-", widths[i])+" ")
	}
	fmt.Fprintln(f.writer)

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(f.writer, "%-*s ", widths[i], cell)
			}
		}
		fmt.Fprintln(f.writer)
	}
}

// PrintKeyValue prints key-value pairs
func (f *Formatter) PrintKeyValue(pairs map[string]interface{}, order []string) {
	maxKeyLen := 0
	for _, key := range order {
		if len(key) > maxKeyLen {
			maxKeyLen = len(key)
		}
	}

	for _, key := range order {
		if val, ok := pairs[key]; ok {
			fmt.Fprintf(f.writer, "%-*s: %v\n", maxKeyLen, key, val)
		}
	}
}

// parseHex parses hex bytes written as "0de0 0001", "0d:e0:00:01" or "0x0de00001"
func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "-", "", "\t", "").Replace(strings.TrimSpace(s))
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}

// formatHex prints bytes as space separated hex pairs
func formatHex(b []byte) string {
	if len(b) == 0 {
		return "-"
	}
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02x", v)
	}
	return strings.Join(parts, " ")
}

// ParameterView is the printable form of a connect parameter
type ParameterView struct {
	Code  string `json:"code" yaml:"code"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

// FrameView is the printable form of a decoded frame
type FrameView struct {
	Type   string `json:"type" yaml:"type"`
	Length int    `json:"length" yaml:"length"`
	Size   int    `json:"size,omitempty" yaml:"size,omitempty"`

	DestinationRef        string          `json:"dst_ref,omitempty" yaml:"dst_ref,omitempty"`
	SourceRef             string          `json:"src_ref,omitempty" yaml:"src_ref,omitempty"`
	Class                 *uint8          `json:"class,omitempty" yaml:"class,omitempty"`
	ExtendedFormats       bool            `json:"extended_formats,omitempty" yaml:"extended_formats,omitempty"`
	NoExplicitFlowControl bool            `json:"no_explicit_flow_control,omitempty" yaml:"no_explicit_flow_control,omitempty"`
	Parameters            []ParameterView `json:"parameters,omitempty" yaml:"parameters,omitempty"`

	TPDUNumber   *uint8 `json:"tpdu_number,omitempty" yaml:"tpdu_number,omitempty"`
	LastDataUnit *bool  `json:"last_data_unit,omitempty" yaml:"last_data_unit,omitempty"`
	Payload      string `json:"payload,omitempty" yaml:"payload,omitempty"`
}

func viewConnect(v *FrameView, c *cotp.ConnectComm) {
	class := c.Class
	v.DestinationRef = hex.EncodeToString(c.DestinationRef[:])
	v.SourceRef = hex.EncodeToString(c.SourceRef[:])
	v.Class = &class
	v.ExtendedFormats = c.ExtendedFormats
	v.NoExplicitFlowControl = c.NoExplicitFlowControl

	for _, p := range c.Parameters {
		pv := ParameterView{Code: p.Code().String()}
		switch param := p.(type) {
		case cotp.TPDUSizeParameter:
			pv.Value = param.Size.String()
		case cotp.SrcTSAP:
			pv.Value = hex.EncodeToString(param)
		case cotp.DstTSAP:
			pv.Value = hex.EncodeToString(param)
		}
		v.Parameters = append(v.Parameters, pv)
	}
}

// viewFrame converts a frame that occupied size bytes on the wire
func viewFrame(f *cotp.Frame[[]byte], size int) FrameView {
	v := FrameView{
		Type:   f.Type().String(),
		Length: f.Length(),
		Size:   size,
	}

	if cr, ok := f.ConnectRequest(); ok {
		viewConnect(&v, &cr.ConnectComm)
	}
	if cc, ok := f.ConnectConfirm(); ok {
		viewConnect(&v, &cc.ConnectComm)
	}
	if dt, ok := f.DtData(); ok {
		number, last := dt.TPDUNumber, dt.LastDataUnit
		v.TPDUNumber = &number
		v.LastDataUnit = &last
		v.Payload = hex.EncodeToString(dt.Payload)
	}
	return v
}

// printFrame prints one frame in the configured format
func printFrame(out *Formatter, f *cotp.Frame[[]byte], raw []byte) error {
	view := viewFrame(f, len(raw))
	if ok, err := out.PrintStructured(view); ok {
		return err
	}
	if out.Format() == FormatRaw {
		out.Println(hex.EncodeToString(raw))
		return nil
	}

	pairs := map[string]interface{}{
		"Type":   view.Type,
		"Length": view.Length,
	}
	order := []string{"Type", "Length"}

	if view.Class != nil {
		pairs["Destination Ref"] = view.DestinationRef
		pairs["Source Ref"] = view.SourceRef
		pairs["Class"] = *view.Class
		pairs["Extended Formats"] = view.ExtendedFormats
		pairs["No Flow Control"] = view.NoExplicitFlowControl
		order = append(order, "Destination Ref", "Source Ref", "Class", "Extended Formats", "No Flow Control")
		for i, p := range view.Parameters {
			key := fmt.Sprintf("Parameter %d", i+1)
			pairs[key] = strings.TrimSpace(p.Code + " " + p.Value)
			order = append(order, key)
		}
	}
	if view.TPDUNumber != nil {
		dt, _ := f.DtData()
		pairs["TPDU Number"] = *view.TPDUNumber
		pairs["Last Data Unit"] = *view.LastDataUnit
		pairs["Payload"] = formatHex(dt.Payload)
		order = append(order, "TPDU Number", "Last Data Unit", "Payload")
	}

	out.PrintKeyValue(pairs, order)
	return nil
}
