package crag

// Prompt templates. Each is rendered with fmt.Sprintf; the grounding
// template's empty rendering is what the token allowance subtracts.

const groundingPrompt = `You are an assistant that extracts facts from retrieved documents.
Read the context below and keep only the passages that help answer the question.
Rewrite them as a concise, factual context. Keep every source reference exactly as it
appears, in square brackets after the sentence it supports, e.g. [container/file.pdf].
Do not answer from your own knowledge. If nothing in the context is relevant, reply with
an empty context.

Context:
%s

Question: %s

Relevant context:`

const qualityPrompt = `You are reviewing an assistant's answer for quality.
Does the answer below actually address the question using concrete information?
Reply with a single word: "yes" if it does, "no" if it does not, is empty, or only says
the information is unavailable.

Question: %s

Answer: %s

Adequate:`

const intentPrompt = `Classify the user's question.
Give the intent as a short label. Use "chit chat" for greetings, thanks and small talk
that needs no knowledge lookup. Then give up to five keywords that capture the topic.

Answer exactly in this format:
Intent: <label>
Keywords: <keyword> <keyword> ...

Question: %s`

const chitChatPrompt = `You are a friendly assistant for a company knowledge base.
Reply briefly and politely to the user's message. Do not make up facts.

User: %s
Assistant:`

const summarizePrompt = `Progressively summarize the conversation below. Keep the names,
facts, numbers and open questions that later turns may refer to, and drop the rest.
Write the summary as a short paragraph.

Conversation:
%s

Summary:`
