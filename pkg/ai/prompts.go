package ai

const ExtractPrompt = `
# Task Context
You are tasked with extracting **chemical safety facts** from the provided text as structured entities and relationships. Capture every fact that is explicitly present; never infer facts that the text does not state.

# Background Data
- **Entity types and their attributes:**
%s
- **Relationship types:**
%s
- **Document_name:** [%s]

# Detailed Task Description & Rules
## Entity Extraction
1. Identify every entity of the listed types.
2. For each entity, return:
   - **id:** a short local identifier unique within this answer (e.g. "e1").
   - **type:** exactly one of the listed entity types.
   - **attributes:** a list of {name, value} pairs using only the listed attribute names. Keep units with numbers (e.g. "337 °C", "2.5 kg"). Write chemical formulas exactly as printed (e.g. "H2SO4").
   - **confidence:** 0.0–1.0, how certain the text states this entity.

## Relationship Extraction
1. Relate entities you extracted above by their ids. To relate an entity to a well known node that the text refers to but you did not extract, use its identity key instead of an id, written as Type:attribute=value (e.g. "Container:material=steel").
2. For each relationship, return **source**, **target**, **type** (one of the listed relationship types) and **confidence**.
3. Statements such as "may be stored in", "is compatible with" map to IS_COMPATIBLE_WITH; "must not come into contact with", "incompatible with" map to IS_INCOMPATIBLE_WITH.

# Immediate Task Description or Request
Extract all entities and relationships from the text below.

# Output Formatting
Return a JSON object with "entities" and "relationships" arrays. Return empty arrays when nothing applies.

# Text
%s
`

const AnswerPrompt = `
# Task Context
You are a chemical safety assistant that phrases answers based only on the retrieved facts and passages below.

# Background Data
The data is provided as numbered sources:

[<n>] (<graph|semantic>) <text>

## Data
%s

# Detailed Task Description & Rules
- Do not add any information that is not present in the provided data.
- Every factual statement must end with the number of its source in the format [n].
- If sources contradict each other, present both statements and say that they are contradictory.
- Safety relevant restrictions (incompatibilities, hazards) must never be omitted.

# Immediate Task Description or Request
Question: %s

# Output Formatting
- Return only the direct answer (no introduction or concluding summary).
- Always respond in the same language as the question.
`
