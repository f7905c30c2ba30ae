// Package challenge implements the challenge-aware exchange flow: classify
// the portal's response, extract the embedded challenge parameters, obtain a
// solved token from an external solver, and resubmit the original request
// exactly once with the new token.
//
// The classifier and extraction adapter mirror the portal's bot-mitigation
// layer (AWS WAF). A challenged response either carries a blocking status or
// embeds the challenge inline in an otherwise ordinary 200 page, so both
// signals are checked.
package challenge
