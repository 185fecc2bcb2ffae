// Package pollservice implements the live poll service inside the
// live-polling context.
//
// The module owns poll creation, vote mutation (ledger write, score projection
// update and live score event publication), poll reads with merged scores, and
// the result subscriptions that feed live viewers. The vote ledger is the source
// of truth; the score store is a projection that the score reconciler can
// rebuild from it. Infrastructure concerns stay behind ports and adapters.
package pollservice
