// Package normalize canonicalizes raw provider field values and maps raw
// field names onto identity scopes.
//
// A scope groups synonymous fields so that the same real-world value
// observed under different field names deduplicates to a single entity:
// registered_domains and breach_domains both map to scope "domain",
// linkedin_urls, account_urls, websites and picture_urls all map to scope
// "url". Unmapped field names fall back to the field name itself as scope;
// normalization never fails.
//
// The (scope, normalized value) pair is the entity identity key consumed
// by the identity package.
package normalize
