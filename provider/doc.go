// Package provider defines the search provider boundary: the adapters
// that execute one lookup against an external OSINT source (breach
// databases, WHOIS, registry lookups, social-platform search) and return
// raw result records with extracted field values.
//
// Adapters must not block indefinitely and must surface failures as an
// empty result list plus an error rather than panicking into the
// controller's loop. The Multiplexer fans one lookup across every capable
// adapter and tolerates per-adapter failure.
//
// Extraction services that turn free text into typed entity candidates
// plug in through the Extractor interface; their output is just another
// record payload, classified and tagged uniformly regardless of origin.
package provider
