package chat

// Conversation is an ordered, append-only view of one thread's messages
type Conversation struct {
	ThreadID string
	Messages []Message
}

func NewConversation(threadID string) Conversation {
	return Conversation{
		ThreadID: threadID,
		Messages: make([]Message, 0),
	}
}

// AddMessage returns a new conversation with msg appended
func AddMessage(conv Conversation, msg Message) Conversation {
	messages := make([]Message, len(conv.Messages)+1)
	copy(messages, conv.Messages)
	messages[len(conv.Messages)] = msg

	return Conversation{
		ThreadID: conv.ThreadID,
		Messages: messages,
	}
}

// ReplaceMessage returns a new conversation where the message with msg.ID is
// replaced as a whole. The second return is false when no such message exists.
func ReplaceMessage(conv Conversation, msg Message) (Conversation, bool) {
	idx := IndexOf(conv.Messages, msg.ID)
	if idx < 0 {
		return conv, false
	}

	messages := make([]Message, len(conv.Messages))
	copy(messages, conv.Messages)
	messages[idx] = msg

	return Conversation{
		ThreadID: conv.ThreadID,
		Messages: messages,
	}, true
}

// IndexOf returns the position of the message with the given id, or -1
func IndexOf(messages []Message, id string) int {
	for i, msg := range messages {
		if msg.ID == id {
			return i
		}
	}
	return -1
}

func GetMessage(conv Conversation, id string) (Message, bool) {
	if idx := IndexOf(conv.Messages, id); idx >= 0 {
		return conv.Messages[idx], true
	}
	return Message{}, false
}

func GetLastMessage(conv Conversation) (Message, bool) {
	if len(conv.Messages) == 0 {
		return Message{}, false
	}
	return conv.Messages[len(conv.Messages)-1], true
}

// GetLastByAgent scans backward for the newest message authored by agent
func GetLastByAgent(conv Conversation, agent Agent) (Message, bool) {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].Agent == agent {
			return conv.Messages[i], true
		}
	}
	return Message{}, false
}

// FindByToolCallID returns the message that owns the tool call with the given id
func FindByToolCallID(messages []Message, toolCallID string) (Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].HasToolCall(toolCallID) {
			return messages[i], true
		}
	}
	return Message{}, false
}

// GetStreamingMessages returns every message still expecting chunks
func GetStreamingMessages(conv Conversation) []Message {
	var result []Message
	for _, msg := range conv.Messages {
		if msg.IsStreaming {
			result = append(result, msg)
		}
	}
	return result
}

func GetMessagesByAgent(conv Conversation, agent Agent) []Message {
	var result []Message
	for _, msg := range conv.Messages {
		if msg.Agent == agent {
			result = append(result, msg)
		}
	}
	return result
}

func GetMessageCount(conv Conversation) int {
	return len(conv.Messages)
}

func IsEmpty(conv Conversation) bool {
	return len(conv.Messages) == 0
}
