// Package jsonfilter provides the json-filter operator.
//
// The filter reads one field from each JSON message body, addressed by a dot
// path such as "sensor.readings.0.unit", and forwards the message unchanged
// when the field's text fully matches a regular expression. Everything else
// is dropped. String values are compared unquoted; other JSON values are
// compared by their raw JSON text.
//
// Settings:
//
//	field    dot path of the field to test (required)
//	pattern  regular expression, anchored at both ends (required)
//	invert   forward the messages that do not match instead (default false)
//
// Field lookup uses sonic's lazy path search, so only the bytes up to the
// field are parsed.
package jsonfilter
