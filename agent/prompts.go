package agent

// Templates use {placeholder} substitution in a single pass, so user text
// that happens to contain a placeholder is never expanded.

const zeroShotTemplate = `You are an assistant that answers questions about the organisation's documents.
Answer the following question as best you can. You have access to the following tools:

{tools}

Use the following format:

Question: the input question you must answer
Thought: you should always think about what to do
Action: the action to take, should be one of [{tool_names}]
Action Input: the input to the action
Observation: the result of the action
... (this Thought/Action/Action Input/Observation can repeat N times)
Thought: I now know the final answer
Final Answer: the final answer to the original input question. Keep the source references of the passages you used, in square brackets, e.g. [container/file.pdf] or [https://site/page].

Previous conversation:
{history}

Context from earlier answers:
{pre_context}

Question: {input}
Thought:{agent_scratchpad}`

const docstoreTemplate = `Solve a question answering task with interleaving Thought, Action, Observation steps.
Thought can reason about the current situation, and Action can be of the following types:
{tools}
Keep the source references of the passages you used in the answer, in square brackets,
e.g. [container/file.pdf].

Previous conversation:
{history}

Context from earlier answers:
{pre_context}

Question: {input}
{agent_scratchpad}`

const directTemplate = `You are an assistant that answers questions about the organisation's documents.
Answer the question using only the context below. Keep the source references of the passages
you used, in square brackets, e.g. [container/file.pdf]. If the context does not contain the
answer, say that the information is not in the knowledge base.

Previous conversation:
{history}

Context from earlier answers:
{pre_context}

Context:
{context}

Question: {input}
Answer:`

const finalAnswerNudge = "\n\nI now need to return a final answer based on the previous steps:"
