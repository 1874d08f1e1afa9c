package cli

// Options configure the demo command.
type Options struct {
	URL      string `short:"u" long:"url" description:"identity service base URL; an embedded mock server is started when empty"`
	Username string `short:"U" long:"username" default:"admin" description:"login username"`
	Password string `short:"P" long:"password" default:"Password1!" description:"login password"`
	Store    string `short:"s" long:"store" default:"memory" choice:"memory" choice:"file" choice:"secure" description:"credential store backend"`
	StoreURL string `long:"store-url" description:"snapshot location for the file and secure stores, e.g. file:///tmp/authkit"`
	Logout   bool   `long:"logout" description:"sign out at the end instead of leaving the session persisted"`
	Verbose  bool   `short:"v" long:"verbose" description:"enable debug logging"`
}
