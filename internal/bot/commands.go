package bot

// Command constants for Telegram bot commands.
const (
	CommandStart   = "/start"
	CommandWorkout = "/workout"
	CommandSkip    = "/skip"
	CommandStatus  = "/status"
	CommandHistory = "/history"
)

// menuCommands maps reply menu catalog keys to the command they trigger.
var menuCommands = map[string]string{
	"menu.workout": CommandWorkout,
	"menu.skip":    CommandSkip,
	"menu.status":  CommandStatus,
	"menu.history": CommandHistory,
}

// commandName returns the command of text without its bot mention, or "" for plain text.
func commandName(text string) string {
	if len(text) < 2 || text[0] != '/' {
		return ""
	}

	end := len(text)
	for i, r := range text {
		if r == ' ' || r == '\n' || r == '@' {
			end = i
			break
		}
	}
	return text[:end]
}
