// Package extract recovers structured JSON objects from free-form language
// model output. Strategies are tried in decreasing order of confidence and
// the first candidate that parses wins; callers receive a typed error only
// once every strategy has been exhausted.
package extract
