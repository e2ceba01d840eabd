// Package internaldefs holds the metric naming tables shared by the
// prometheus and otel exporters so both expose identical series names.
package internaldefs
