// Package agent drives one conversation turn against a model and the memory
// tools.
//
// Every turn starts with a memory_search for the user's utterance. Its result,
// or a note that memory was unavailable, is rendered into the system prompt
// before the first model call. The model may then request memory_search and
// memory_ingest calls; each round runs concurrently, bounded by
// [WithMaxParallelTools], and is reported in request order. The loop ends when
// the model answers without tool calls or after [WithMaxToolRounds] rounds.
//
//	a := agent.New(client, memoryProvider, agent.WithTemplateSource(promptFile))
//	stream, err := a.Run(ctx, agent.Input{Query: text, History: history, Scope: scope})
//	if err != nil {
//	    return err // template or tool list problem, nothing was sent
//	}
//	for event, err := range stream.Iter() {
//	    ...
//	}
package agent
