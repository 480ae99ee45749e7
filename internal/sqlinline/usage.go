package sqlinline

const QInsertUsageEvent = `--sql 1dc2cedb-f5ff-4b38-af5b-a590e9371b19
insert into usage_events(user_id, request_id, event_type, success, fallback, latency_ms, created_at)
values ($1::uuid, nullif($2::text, '')::uuid, $3::text, $4::boolean, $5::boolean, $6::int, now());
`

const QUsageStats = `--sql 625f7dc6-37bd-437c-8d84-f2827bafbe61
select
  count(*) filter (where event_type in ('IMAGE_GENERATE', 'GEMINI_IMAGE') and success),
  count(*) filter (where event_type = 'VIDEO_GENERATE' and success),
  count(*) filter (where event_type = 'POST_GENERATE' and success),
  count(*) filter (where success),
  count(*) filter (where not success),
  count(*) filter (where fallback),
  count(*) filter (where created_at > now() - interval '24 hours'),
  coalesce(avg(latency_ms), 0)::float8
from usage_events
where user_id = $1::uuid;
`
