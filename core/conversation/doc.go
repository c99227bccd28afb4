// Package conversation owns conversation state and turns a user utterance
// into an ordered stream of events.
//
// A turn is started with [Engine.StreamTurn]. Empty input, a conversation
// that is not active, and a conversation already running a turn are rejected
// synchronously with an [*Error]. Otherwise the user message is appended and
// the returned [TurnStream] yields MESSAGE_START, then tool and text events in
// the order the agent produced them, then exactly one MESSAGE_END or ERROR.
//
//	engine := conversation.NewEngine(agent.New(client, memoryProvider))
//	conv := conversation.New(conversation.WithSpaceIDs(spaceID))
//
//	stream, err := engine.StreamTurn(ctx, conv, "What trials match HER2-positive stage II?")
//	if err != nil {
//	    return err
//	}
//	for event, err := range stream.Iter() {
//	    if err != nil {
//	        // event.Kind == ERROR; conv.Status is errored until Reset or Reopen
//	        return err
//	    }
//	    if event.Kind == conversation.EventChunk {
//	        fmt.Print(event.Text)
//	    }
//	}
//
// Cancelling ctx or breaking out of the loop stops the turn without a
// terminal event; the conversation stays active with only the user message
// added.
package conversation
