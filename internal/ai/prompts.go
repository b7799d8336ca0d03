package ai

const replyPrompt = `You are replying to a LinkedIn comment on your post about %s.

The commenter (%s) wrote: "%s"

Write a friendly, engaging reply that:
1. Acknowledges their interest
2. Is warm and personal (use their first name: %s)
3. Hints at the value you'll provide: %s
4. Is 1-2 sentences, under 15 words if possible
5. Tone: %s

Do not be salesy or pushy.
Write only the reply text, nothing else.`

const replyWithInstructionsPrompt = `%s

---
CURRENT CONTEXT:
- Commenter name: %s (first name: %s)
- Their comment: "%s"
- Post topic: %s
- Your tone: %s

Now write the public comment reply (under 15 words) following the instructions above.
Write only the reply text, nothing else.`

const salesDMPrompt = `Write a LinkedIn DM to %s (%s).

Context: they commented on your post about %s and showed interest.

Send a helpful, non-pushy message that:
1. Thanks them for engaging
2. Provides immediate value
3. %s
4. Is conversational
5. Is 3-5 sentences

CTA type: %s
CTA: %s

Write only the message text, nothing else.`

const salesDMWithInstructionsPrompt = `%s

---
CURRENT CONTEXT:
- Lead name: %s (first name: %s)
- Lead headline: %s
- Post topic they engaged with: %s
- CTA type: %s
- CTA value: %s
%s
Now write the DM following the instructions above.
Write only the message text, nothing else.`

const settingsDMPrompt = `%s

---
ABOUT ME:
%s

RECIPIENT:
- Name: %s (first name: %s)
- Headline: %s
- How we met: %s

Write a short LinkedIn direct message to this person following the instructions above.
Write only the message text, nothing else.`

const insightfulCommentPrompt = `You're commenting on a LinkedIn post as an expert in: %s.

Post by %s (%s):
"%s"

Write a thoughtful comment that:
1. Adds genuine value or insight
2. Shows expertise without being preachy
3. Is 2-4 sentences
4. Sounds human
5. Tone: %s
%s
Never use generic phrases like "Great post!" or "Thanks for sharing!"
%s
Write only the comment text, nothing else.`

const classifyPrompt = `Analyze these LinkedIn comments and find people showing genuine interest.

KEYWORDS (case-insensitive, match on intent rather than exact words):
%s

Any expression of interest, enthusiasm or wish to take part counts as a match for the closest keyword.

COMMENTS:
%s
%s
For each comment that shows interest, answer with one line:
MATCH: <comment number> | KEYWORD: <one of the keywords> | CONFIDENCE: <high or medium>

Only list matches. If nothing matches, answer: NO_MATCHES`
