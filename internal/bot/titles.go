package bot

// DefaultTitleModifiers are prefixed to reposted titles. Empty entries leave
// the title unchanged, so roughly three in eight reposts keep the original.
var DefaultTitleModifiers = []string{
	"This is interesting: ",
	"",
	"Check this out: ",
	"Wow: ",
	"Amazing: ",
	"",
	"Interesting: ",
	"",
}

// FallbackReply is used when reply generation fails.
const FallbackReply = "This is an automated response!"
