package service

import (
	"fmt"
	"strings"

	"github.com/spec-kit/intake-desk/internal/domain"
)

const namePrompt = "*Step 1 of 3:* Please type your *FULL NAME*"

func promptWelcome() string {
	return "Hello! Welcome to the *Support Desk*\n\n" +
		"To help you we need a few details.\n\n" +
		namePrompt + "\n\n_(Example: John Smith)_"
}

func promptNameRejected(reason domain.FieldRejection) string {
	if reason == domain.RejectNameNoLetters {
		return "The name must contain letters.\n\n" + namePrompt + ":"
	}
	return "The name must be at least 3 characters long.\n\n" + namePrompt + ":"
}

func promptPlate(name string) string {
	return fmt.Sprintf("Thanks, *%s*\n\n*Step 2 of 3:* Now enter your vehicle *PLATE*\n(Format: ABC123):", name)
}

func promptPlateRejected() string {
	return "The plate is not valid.\n\nThe format must be *3 letters + 3 digits*\nExample: ABC123\n\nPlease enter your plate again:"
}

func promptNationalID(plate string) string {
	return fmt.Sprintf("Plate registered: *%s*\n\n*Step 3 of 3:* Now enter your *NATIONAL ID* number:", plate)
}

func promptNationalIDRejected() string {
	return "The ID number is not valid.\n\nIt must have between 6 and 10 digits.\n\nPlease enter your ID number again:"
}

func promptQueued(conv *domain.Conversation, ticket *domain.Ticket, position int) string {
	var b strings.Builder
	b.WriteString("*Details registered:*\n\n")
	fmt.Fprintf(&b, "Ticket: *%s*\n", ticket.Number)
	fmt.Fprintf(&b, "Name: *%s*\n", conv.DisplayName)
	fmt.Fprintf(&b, "Plate: *%s*\n", conv.Plate)
	fmt.Fprintf(&b, "ID: *%s*\n", conv.NationalID)
	fmt.Fprintf(&b, "Priority: %s", ticket.Priority)
	if n := len(ticket.Attachments); n > 0 {
		fmt.Fprintf(&b, "\nFiles attached: %d", n)
	}
	fmt.Fprintf(&b, "\n\nYou are number *%d* in the queue.\n\nAn agent will be with you shortly.", position)
	return b.String()
}

func promptStillQueued(ticket *domain.Ticket, position int) string {
	return fmt.Sprintf("You are still in the queue.\n\nTicket: *%s*\nCurrent position: *%d*\n\nAn agent will be with you shortly.",
		ticketNumberOrNA(ticket), position)
}

func promptAssigned(ticket *domain.Ticket, agentName string) string {
	if agentName == "" {
		return fmt.Sprintf("You are being attended.\n\nTicket: *%s*\n\nAn agent is reviewing your request.", ticketNumberOrNA(ticket))
	}
	return fmt.Sprintf("You have been assigned to an agent.\n\nTicket: *%s*\nAgent: *%s*\n\nWe will reply shortly.",
		ticketNumberOrNA(ticket), agentName)
}

func promptAgentTookTicket(number, agentName string) string {
	if agentName == "" {
		agentName = "An agent"
	}
	return fmt.Sprintf("*%s* has taken your ticket.\n\nTicket: *%s*\n\nYou will be attended shortly. Thank you for your patience.", agentName, number)
}

func promptTicketClosed(number string) string {
	return fmt.Sprintf("Your ticket *%s* has been closed.\n\nIf you need anything else, just send us a new message.", number)
}

func promptMediaSaved(kind domain.MessageKind, caption string, ticket *domain.Ticket) string {
	return fmt.Sprintf("File received (%s)!\n\nSaved to your ticket *%s*%s\n\nThe agent will see it when handling your request.",
		kind, ticket.Number, captionSuffix(caption))
}

func promptMediaPending(kind domain.MessageKind, caption string) string {
	return fmt.Sprintf("File received (%s)!%s\n\nIt will be attached to your ticket once we have your details.\n\nPlease keep answering the questions.",
		kind, captionSuffix(caption))
}

func promptEditRejected() string {
	return "*Edits are not applied*\n\nFor traceability we cannot process edited messages.\n\nIf you need to correct something, please send a new message with the right details."
}

func mediaNote(kind domain.MessageKind, caption, mediaRef string) string {
	note := fmt.Sprintf("Requester attachment: %s (ref %s)", kind, mediaRef)
	if caption != "" {
		note += "\n" + caption
	}
	return note
}

func editAttemptNote(text string) string {
	if text == "" {
		text = "media"
	}
	return fmt.Sprintf("Edit attempt rejected. The requester tried to edit an earlier message with: %q", stringPreview(text, 100))
}

func ticketDescription(conv *domain.Conversation) string {
	return fmt.Sprintf("Service request - requester: %s - plate: %s", conv.DisplayName, conv.Plate)
}

func captionSuffix(caption string) string {
	if caption == "" {
		return ""
	}
	return fmt.Sprintf("\n%q", caption)
}

func ticketNumberOrNA(ticket *domain.Ticket) string {
	if ticket == nil {
		return "N/A"
	}
	return ticket.Number
}
