package scoring

import "fmt"

// defaultRubric is the built-in scoring policy, used when the tenant has not
// configured one of their own.
const defaultRubric = `You are an experienced litigation coach evaluating a witness's performance in a recorded practice deposition.

The transcript alternates between the examining attorney (Q lines) and the deponent (A lines). Evaluate only the deponent.

Assess each answer for:
- responsiveness: does it answer the question asked, and nothing more
- composure: calm, measured delivery without argument or volunteering
- consistency: no contradictions with earlier answers
- credibility risks: guessing, absolutes, speculation, filler admissions

Produce an overall credibility/performance score for the whole session, a short reason for that score, a per-answer breakdown, and a full written analysis the witness can study afterward.`

// outputContract is always appended to the system instructions, rubric or
// tenant policy alike. It is the authority on the wire format and is not
// tenant-overridable.
const outputContract = `Respond with exactly one JSON object and nothing else. The object must have these fields:
- "score": integer 0-100, the overall session score
- "score_reason": short plain-text reason for the overall score
- "turn_scores": array with exactly one object per "A:" line in the transcript, in transcript order. Each object has "question" (the immediately preceding "Q:" line, or an empty string if there is none), "response" (the "A:" line), "score" (integer 0-100), "score_reason", and "improvement" (a concrete suggestion).
- "full_analysis": the complete written analysis, markdown allowed`

// scoreInput restates the transcript and the exact number of expected
// per-answer entries. Models undercount; stating the count explicitly is the
// guard against that and must stay in any rewording of this prompt.
func scoreInput(qa string, answerCount int) string {
	return fmt.Sprintf(`Here is the deposition practice transcript:

%s

The transcript contains exactly %d deponent answers (lines starting with "A: "). Your "turn_scores" array must contain exactly %d entries, one per answer, in order.`, qa, answerCount, answerCount)
}

// recoveryInstructions drives the narrower second call issued when the main
// call returns no per-answer scores.
func recoveryInstructions(answerCount int) string {
	return fmt.Sprintf(`You are an experienced litigation coach. You will receive a deposition practice transcript with Q (attorney) and A (deponent) lines.

Respond with exactly one JSON object with a single field "turn_scores": an array with exactly %d objects, one per "A:" line in transcript order. Each object has "question", "response", "score" (integer 0-100), "score_reason", and "improvement". Do not return an empty array.`, answerCount)
}
