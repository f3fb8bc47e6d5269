package stream

import "strings"

var mathReplacer = strings.NewReplacer(
	`\(`, "$",
	`\)`, "$",
	`\[`, "$$",
	`\]`, "$$",
)

// FixMath 把 \( \) 与 \[ \] 定界符改写为 $ 与 $$。
func FixMath(s string) string {
	return mathReplacer.Replace(s)
}
