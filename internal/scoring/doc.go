// Package scoring aggregates audit scores into category and overall scores.
package scoring
