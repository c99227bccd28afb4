// Package parse decodes JSON that a language model wrote, most importantly
// tool-call arguments. Model output is often almost-JSON: fenced in markdown,
// single-quoted, with trailing commas, or wrapped in schema-style
// {"type": ..., "value": ...} envelopes. [ParseStringAs] repairs and unwraps
// before giving up; [ParseArgs] adds the conventions of tool arguments.
package parse
