package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

func smells(m dsl.Matcher) {
	// Two consecutive guards returning the same value are one condition.
	m.Match(`if $c1 { return $ret }; if $c2 { return $ret }`).
		Report(`two consecutive guards return the same value; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { return $ret }`)

	m.Match(`if $c1 { continue }; if $c2 { continue }`).
		Report(`two consecutive continues; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { continue }`)

	// A timeout context whose cancel is discarded leaks its timer.
	m.Match(`$_, _ = context.WithTimeout($*_)`,
		`$_, _ := context.WithTimeout($*_)`).
		Report(`cancel func from WithTimeout is discarded; defer it instead`)
}

func streaming(m dsl.Matcher) {
	// Event emitters own the close; a later send panics.
	m.Match(`close($ch); $ch <- $_`).
		Report(`send after close panics; close the channel only once no sender remains`)
}
