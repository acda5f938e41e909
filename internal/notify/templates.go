package notify

import "fmt"

// WelcomeMessage greets a newly registered user.
func WelcomeMessage(email string) Message {
	return Message{
		To:      email,
		Subject: "Welcome to the app",
		Body:    "Hi,\n\nThanks for signing up. We are glad to have you onboard!",
	}
}

// AssignmentMessage tells a moderator a ticket is now theirs.
func AssignmentMessage(email, ticketTitle string) Message {
	return Message{
		To:      email,
		Subject: "New Ticket Assigned to You",
		Body:    fmt.Sprintf("A new ticket has been assigned to you: %q", ticketTitle),
	}
}
