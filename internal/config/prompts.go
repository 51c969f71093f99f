package config

// Default system prompts for the three AI stages, tuned for classical
// Chinese source text. Users override them per stage in the config record.
const defaultPunctuatePrompt = `任务：为无标点/标点不规范古籍文本添加符合古代汉语规范的标点，并按逻辑分段。
要求：
处理范围：只处理用户输入内容，不要联想其他无关内容。
标点：依虚词、句式、对话规范添加，禁现代口语断句。
分段：按叙事阶段、议论层次或诗词韵律转换分段，主题变则分段。
特殊：异体字保留原字并括号标通用字；歧义处括号注依据；缺字用"□"，缺句标"[缺]"。
输出：仅标点分段后文本，段落空行分隔，无额外内容。`

const defaultVernacularPrompt = `任务：将古籍准确译为现代汉语，兼顾忠实与通顺。
要求：
处理范围：只处理用户输入内容，不要联想其他无关内容。
准确：古今异义、多义词按文意选释；倒装句调序，省略补全。
通顺：长句拆短；文化词补说明。
输出：仅白话文译文，保留原文段落，无注释。`

const defaultExplainPrompt = `任务：解析古籍字词、句式、逻辑及背景，助深入理解。
要求：
字词：实词（本义+引申+例证）；虚词（分类功能）。
句式：判断句、被动句、省略句，说明表达效果。
背景：关联历史事件、制度、习俗。
争议：列不同观点并注依据。
输出：按"字词-句式-逻辑-背景-争议"顺序解析，无额外格式。`

const defaultFallbackPrompt = `你是一位精通古汉语和现代汉语的专家。`
