// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AURA Contributors

package gateway

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// command is a local shortcut answered without touching the backend.
// Matching is on whole words of the lowercased message, so "display"
// never triggers "play".
type command struct {
	name    string
	match   func(words []string) bool
	respond func(text string, now time.Time) string
}

// commands are checked in order before the reply cache and before any
// negotiation. Command replies are never cached.
var commands = []command{
	{
		name:  "play",
		match: hasWord("play"),
		respond: func(text string, _ time.Time) string {
			song := textAfterWord(text, "play")
			if song == "" {
				song = "some music"
			}
			return fmt.Sprintf("I would play %q for you, but I can't play music in this chat.", song)
		},
	},
	{
		name:  "time",
		match: hasWord("time"),
		respond: func(_ string, now time.Time) string {
			return "Current time is " + now.Format("3:04 PM")
		},
	},
	{
		name:  "joke",
		match: hasWord("joke"),
		respond: func(_ string, _ time.Time) string {
			return jokes[rand.IntN(len(jokes))]
		},
	},
	{
		name: "goodbye",
		match: func(words []string) bool {
			return hasWord("goodbye")(words) || hasWord("exit")(words) || hasWord("bye")(words)
		},
		respond: func(_ string, _ time.Time) string {
			return "Goodbye!"
		},
	},
}

var jokes = []string{
	"Why do programmers prefer dark mode? Because light attracts bugs.",
	"There are only 10 kinds of people: those who understand binary and those who don't.",
	"I would tell you a UDP joke, but you might not get it.",
	"A SQL query walks into a bar, goes up to two tables and asks: may I join you?",
	"Why did the developer go broke? Because they used up all their cache.",
}

// commandReply answers text locally when it matches a shortcut.
func commandReply(text string, now time.Time) (string, bool) {
	words := commandWords(text)
	for _, c := range commands {
		if c.match(words) {
			return c.respond(text, now), true
		}
	}
	return "", false
}

// commandWords lowercases and splits the message, trimming trailing
// punctuation so "a joke?" still matches.
func commandWords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if w := strings.Trim(f, ".,!?;:'\""); w != "" {
			words = append(words, w)
		}
	}
	return words
}

func hasWord(word string) func([]string) bool {
	return func(words []string) bool {
		for _, w := range words {
			if w == word {
				return true
			}
		}
		return false
	}
}

// textAfterWord returns the original-cased remainder after the first
// occurrence of word, for "play <song>" style extraction.
func textAfterWord(text, word string) string {
	lower := strings.ToLower(text)
	i := strings.Index(lower, word)
	if i < 0 {
		return ""
	}
	return strings.Trim(text[i+len(word):], " .,!?;:'\"")
}
